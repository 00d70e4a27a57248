package tensor

import (
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// Absorb says which factor receives the singular values of a split.
type Absorb int

const (
	// AbsorbNone leaves both factors isometric and returns the singular
	// values separately.
	AbsorbNone Absorb = iota
	AbsorbLeft
	AbsorbRight
	// AbsorbBoth multiplies the square root of the singular values into
	// each factor.
	AbsorbBoth
)

// SplitOpts controls SVD truncation during a split.
type SplitOpts struct {
	// MaxBond caps the number of singular values kept. Zero means no cap.
	MaxBond int
	// Cutoff discards trailing singular values while the discarded relative
	// 2-norm weight stays below it.
	Cutoff float64
	// Absorb says which factor receives the singular values.
	Absorb Absorb
	// BondInd names the new bond index. Empty means generate a fresh name.
	BondInd string
}

// RandInd returns a fresh bond index name.
func RandInd() string {
	return "_b" + uuid.NewString()[:13]
}

// SplitSVD factorizes t into left and right tensors joined by a new bond,
// via truncated singular value decomposition. The left tensor carries
// leftInds plus the bond, the right tensor carries the bond plus the
// remaining indices. The returned slice holds the kept singular values.
func SplitSVD(t *Dense, leftInds []string, opts SplitOpts) (*Dense, []float64, *Dense, string) {
	var rightInds []string
	for _, ix := range t.inds {
		if !slices.Contains(leftInds, ix) {
			rightInds = append(rightInds, ix)
		}
	}
	tT := t.Transpose(append(slices.Clone(leftInds), rightInds...)...)

	rows, cols := 1, 1
	var leftDims, rightDims []int
	for _, ix := range leftInds {
		d := t.IndSize(ix)
		rows *= d
		leftDims = append(leftDims, d)
	}
	for _, ix := range rightInds {
		d := t.IndSize(ix)
		cols *= d
		rightDims = append(rightDims, d)
	}

	var svd mat.SVD
	if ok := svd.Factorize(mat.NewDense(rows, cols, tT.data), mat.SVDThin); !ok {
		panic(fmt.Sprintf("%#v", t.shape))
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	k := truncRank(s, opts.MaxBond, opts.Cutoff)
	s = s[:k]

	bond := opts.BondInd
	if bond == "" {
		bond = RandInd()
	}

	// Left factor: rows x k.
	lData := make([]float64, 0, rows*k)
	for i := 0; i < rows; i++ {
		for j := 0; j < k; j++ {
			x := u.At(i, j)
			switch opts.Absorb {
			case AbsorbLeft:
				x *= s[j]
			case AbsorbBoth:
				x *= math.Sqrt(s[j])
			}
			lData = append(lData, x)
		}
	}
	left := New(lData, append(slices.Clone(leftInds), bond), append(slices.Clone(leftDims), k))

	// Right factor: k x cols, rows of V transposed.
	rData := make([]float64, 0, k*cols)
	for j := 0; j < k; j++ {
		for i := 0; i < cols; i++ {
			x := v.At(i, j)
			switch opts.Absorb {
			case AbsorbRight:
				x *= s[j]
			case AbsorbBoth:
				x *= math.Sqrt(s[j])
			}
			rData = append(rData, x)
		}
	}
	right := New(rData, append([]string{bond}, rightInds...), append([]int{k}, rightDims...))

	return left, slices.Clone(s), right, bond
}

// truncRank returns how many singular values survive the maxBond cap and
// the relative discarded-weight cutoff.
func truncRank(s []float64, maxBond int, cutoff float64) int {
	k := len(s)
	if maxBond > 0 && maxBond < k {
		k = maxBond
	}
	if cutoff > 0 {
		var total float64
		for _, v := range s {
			total += v * v
		}
		if total > 0 {
			var tail float64
			for k > 1 {
				w := s[k-1] * s[k-1]
				if math.Sqrt((tail+w)/total) > cutoff {
					break
				}
				tail += w
				k--
			}
		}
	}
	if k < 1 {
		k = 1
	}
	return k
}

// SplitQR factorizes t into an isometric left tensor carrying leftInds plus
// a new bond, and a right tensor carrying the bond plus the rest. When the
// left dimension is smaller than the right one a thin SVD is used instead
// of QR, which yields the same isometric form.
func SplitQR(t *Dense, leftInds []string) (*Dense, *Dense, string) {
	var rightInds []string
	for _, ix := range t.inds {
		if !slices.Contains(leftInds, ix) {
			rightInds = append(rightInds, ix)
		}
	}
	rows, cols := 1, 1
	var leftDims, rightDims []int
	for _, ix := range leftInds {
		d := t.IndSize(ix)
		rows *= d
		leftDims = append(leftDims, d)
	}
	for _, ix := range rightInds {
		d := t.IndSize(ix)
		cols *= d
		rightDims = append(rightDims, d)
	}

	if rows < cols {
		left, _, right, bond := SplitSVD(t, leftInds, SplitOpts{Absorb: AbsorbRight})
		return left, right, bond
	}

	tT := t.Transpose(append(slices.Clone(leftInds), rightInds...)...)
	var qr mat.QR
	qr.Factorize(mat.NewDense(rows, cols, tT.data))
	var qFull, r mat.Dense
	qr.QTo(&qFull)
	qr.RTo(&r)

	k := cols
	bond := RandInd()

	qData := make([]float64, 0, rows*k)
	for i := 0; i < rows; i++ {
		for j := 0; j < k; j++ {
			qData = append(qData, qFull.At(i, j))
		}
	}
	left := New(qData, append(slices.Clone(leftInds), bond), append(slices.Clone(leftDims), k))

	rData := make([]float64, 0, k*cols)
	for i := 0; i < k; i++ {
		for j := 0; j < cols; j++ {
			rData = append(rData, r.At(i, j))
		}
	}
	right := New(rData, append([]string{bond}, rightInds...), append([]int{k}, rightDims...))

	return left, right, bond
}

// DirectSum combines a and b into their direct sum: indices named in
// sumInds must have equal dimensions and are summed over, all other
// indices are block-concatenated. Both tensors must carry the same index
// set. This is the site-local operation behind adding two networks of
// identical geometry.
func DirectSum(a, b *Dense, sumInds []string) *Dense {
	if len(a.inds) != len(b.inds) {
		panic(fmt.Sprintf("%v %v", a.inds, b.inds))
	}
	bT := b.Transpose(a.inds...)

	n := len(a.inds)
	shape := make([]int, n)
	isSum := make([]bool, n)
	for i, ix := range a.inds {
		if slices.Contains(sumInds, ix) {
			if a.shape[i] != bT.shape[i] {
				panic(fmt.Sprintf("%q %d %d", ix, a.shape[i], bT.shape[i]))
			}
			shape[i] = a.shape[i]
			isSum[i] = true
		} else {
			shape[i] = a.shape[i] + bT.shape[i]
		}
	}

	out := Zeros(a.inds, shape)
	digits := make([]int, n)
	src := make([]int, n)
	for flat := range out.data {
		// Decide which block the element belongs to.
		inA, inB := true, true
		for i, d := range digits {
			if isSum[i] {
				src[i] = d
				continue
			}
			if d < a.shape[i] {
				inB = false
				src[i] = d
			} else {
				inA = false
				src[i] = d - a.shape[i]
			}
		}
		switch {
		case inA && inB:
			// All axes are summed: plain addition.
			out.data[flat] = a.data[a.flat(src)] + bT.data[bT.flat(src)]
		case inA:
			out.data[flat] = a.data[a.flat(src)]
		case inB:
			out.data[flat] = bT.data[bT.flat(src)]
		}

		for i := n - 1; i >= 0; i-- {
			digits[i]++
			if digits[i] < shape[i] {
				break
			}
			digits[i] = 0
		}
	}
	for tag := range a.tags {
		out.tags[tag] = struct{}{}
	}
	return out
}
