// Package tensor implements a dense tensor with named indices and tags.
//
// Indices identify bonds: two tensors sharing an index name are connected,
// and contracting them sums over that index. Tags are free-form group labels
// used by the network layer to address tensors by site.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock
package tensor

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Dense is a dense real tensor with one name per axis.
type Dense struct {
	inds  []string
	shape []int
	data  []float64
	tags  map[string]struct{}
}

// New creates a tensor from row-major data. The lengths of inds and shape
// must match, and the product of shape must equal len(data).
func New(data []float64, inds []string, shape []int, tags ...string) *Dense {
	if len(inds) != len(shape) {
		panic(fmt.Sprintf("%d %d", len(inds), len(shape)))
	}
	size := 1
	for _, d := range shape {
		size *= d
	}
	if size != len(data) {
		panic(fmt.Sprintf("%d %d", size, len(data)))
	}
	seen := make(map[string]struct{}, len(inds))
	for _, ix := range inds {
		if _, ok := seen[ix]; ok {
			panic(fmt.Sprintf("repeated index %q", ix))
		}
		seen[ix] = struct{}{}
	}
	t := &Dense{
		inds:  slices.Clone(inds),
		shape: slices.Clone(shape),
		data:  slices.Clone(data),
		tags:  make(map[string]struct{}),
	}
	for _, tag := range tags {
		t.tags[tag] = struct{}{}
	}
	return t
}

// Zeros creates a zero tensor with the given indices and shape.
func Zeros(inds []string, shape []int, tags ...string) *Dense {
	size := 1
	for _, d := range shape {
		size *= d
	}
	return New(make([]float64, size), inds, shape, tags...)
}

// Scalar creates a zero-index tensor holding v.
func Scalar(v float64) *Dense {
	return New([]float64{v}, nil, nil)
}

// FromMatrix creates a tensor from a matrix whose rows enumerate rowInds
// (with dimensions rowDims) and columns enumerate colInds.
func FromMatrix(m mat.Matrix, rowInds, colInds []string, rowDims, colDims []int) *Dense {
	rows, cols := m.Dims()
	if n := prod(rowDims); n != rows {
		panic(fmt.Sprintf("%d %d", n, rows))
	}
	if n := prod(colDims); n != cols {
		panic(fmt.Sprintf("%d %d", n, cols))
	}
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data = append(data, m.At(i, j))
		}
	}
	inds := append(slices.Clone(rowInds), colInds...)
	shape := append(slices.Clone(rowDims), colDims...)
	return New(data, inds, shape)
}

func prod(xs []int) int {
	p := 1
	for _, x := range xs {
		p *= x
	}
	return p
}

// Copy returns a deep copy.
func (t *Dense) Copy() *Dense {
	c := New(t.data, t.inds, t.shape)
	for tag := range t.tags {
		c.tags[tag] = struct{}{}
	}
	return c
}

// Inds returns the index names in axis order.
func (t *Dense) Inds() []string { return slices.Clone(t.inds) }

// Shape returns the dimensions in axis order.
func (t *Dense) Shape() []int { return slices.Clone(t.shape) }

// Size returns the total number of elements.
func (t *Dense) Size() int { return len(t.data) }

// Data returns the backing row-major data slice. Mutations are visible to
// the tensor.
func (t *Dense) Data() []float64 { return t.data }

// HasInd reports whether ix is one of the tensor's indices.
func (t *Dense) HasInd(ix string) bool { return slices.Contains(t.inds, ix) }

// IndSize returns the dimension of index ix.
func (t *Dense) IndSize(ix string) int {
	return t.shape[t.axis(ix)]
}

func (t *Dense) axis(ix string) int {
	a := slices.Index(t.inds, ix)
	if a < 0 {
		panic(fmt.Sprintf("no index %q in %v", ix, t.inds))
	}
	return a
}

// AddTag adds tags to the tensor.
func (t *Dense) AddTag(tags ...string) {
	for _, tag := range tags {
		t.tags[tag] = struct{}{}
	}
}

// DropTag removes a tag if present.
func (t *Dense) DropTag(tag string) { delete(t.tags, tag) }

// HasTag reports whether the tensor carries tag.
func (t *Dense) HasTag(tag string) bool {
	_, ok := t.tags[tag]
	return ok
}

// Tags returns a sorted copy of the tensor's tags.
func (t *Dense) Tags() []string {
	tags := make([]string, 0, len(t.tags))
	for tag := range t.tags {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// Retag renames tags according to the mapping, in place.
func (t *Dense) Retag(mapping map[string]string) {
	for old, nu := range mapping {
		if _, ok := t.tags[old]; ok {
			delete(t.tags, old)
			t.tags[nu] = struct{}{}
		}
	}
}

// Reindex renames indices according to the mapping, in place.
func (t *Dense) Reindex(mapping map[string]string) {
	for a, ix := range t.inds {
		if nu, ok := mapping[ix]; ok {
			t.inds[a] = nu
		}
	}
}

// At returns the element at the given multi-index.
func (t *Dense) At(ix ...int) float64 {
	return t.data[t.flat(ix)]
}

// SetAt sets the element at the given multi-index.
func (t *Dense) SetAt(v float64, ix ...int) {
	t.data[t.flat(ix)] = v
}

func (t *Dense) flat(ix []int) int {
	if len(ix) != len(t.shape) {
		panic(fmt.Sprintf("%d %d", len(ix), len(t.shape)))
	}
	flat := 0
	for a, i := range ix {
		flat = flat*t.shape[a] + i
	}
	return flat
}

// ScalarValue returns the value of a size-1 tensor.
func (t *Dense) ScalarValue() float64 {
	if len(t.data) != 1 {
		panic(fmt.Sprintf("%#v", t.shape))
	}
	return t.data[0]
}

// Scale multiplies all elements by c, in place.
func (t *Dense) Scale(c float64) {
	for i := range t.data {
		t.data[i] *= c
	}
}

// Norm returns the Frobenius norm.
func (t *Dense) Norm() float64 {
	var s float64
	for _, v := range t.data {
		s += v * v
	}
	return math.Sqrt(s)
}

// Conj returns the complex conjugate. The backing data is real, so this is
// a copy; it exists so double-layer (bra) constructions read naturally.
func (t *Dense) Conj() *Dense { return t.Copy() }

// MultiplyIndexDiagonal scales the slices along index ix by v, in place.
// This is how a bond gauge is absorbed into a tensor leg.
func (t *Dense) MultiplyIndexDiagonal(ix string, v []float64) {
	a := t.axis(ix)
	if len(v) != t.shape[a] {
		panic(fmt.Sprintf("%d %d", len(v), t.shape[a]))
	}
	inner := 1
	for _, d := range t.shape[a+1:] {
		inner *= d
	}
	outer := len(t.data) / (inner * t.shape[a])
	pos := 0
	for o := 0; o < outer; o++ {
		for i := 0; i < t.shape[a]; i++ {
			vi := v[i]
			for k := 0; k < inner; k++ {
				t.data[pos] *= vi
				pos++
			}
		}
	}
}

// Transpose returns a copy with axes reordered to the given index order,
// which must be a permutation of the tensor's indices.
func (t *Dense) Transpose(inds ...string) *Dense {
	perm := make([]int, len(inds))
	for i, ix := range inds {
		perm[i] = t.axis(ix)
	}
	shape, data := t.permuted(perm)
	nu := New(data, inds, shape)
	for tag := range t.tags {
		nu.tags[tag] = struct{}{}
	}
	return nu
}

// permuted returns the shape and row-major data of the tensor with axes
// reordered by perm (perm[i] is the source axis of destination axis i).
func (t *Dense) permuted(perm []int) ([]int, []float64) {
	n := len(t.shape)
	if len(perm) != n {
		panic(fmt.Sprintf("%d %d", len(perm), n))
	}
	shape := make([]int, n)
	for i, a := range perm {
		shape[i] = t.shape[a]
	}

	// Strides of the source layout, gathered in destination axis order.
	srcStrides := make([]int, n)
	stride := 1
	for a := n - 1; a >= 0; a-- {
		srcStrides[a] = stride
		stride *= t.shape[a]
	}
	strides := make([]int, n)
	for i, a := range perm {
		strides[i] = srcStrides[a]
	}

	data := make([]float64, len(t.data))
	digits := make([]int, n)
	src := 0
	for dst := range data {
		data[dst] = t.data[src]
		for a := n - 1; a >= 0; a-- {
			digits[a]++
			src += strides[a]
			if digits[a] < shape[a] {
				break
			}
			digits[a] = 0
			src -= shape[a] * strides[a]
		}
	}
	return shape, data
}

// Contract contracts a and b over all of their shared indices, returning a
// tensor whose indices are a's free indices followed by b's free indices.
// Tensors with no shared index form an outer product.
func Contract(a, b *Dense) *Dense {
	var shared []string
	for _, ix := range a.inds {
		if b.HasInd(ix) {
			shared = append(shared, ix)
		}
	}
	var freeA, freeB []string
	for _, ix := range a.inds {
		if !slices.Contains(shared, ix) {
			freeA = append(freeA, ix)
		}
	}
	for _, ix := range b.inds {
		if !slices.Contains(shared, ix) {
			freeB = append(freeB, ix)
		}
	}

	aT := a.Transpose(append(slices.Clone(freeA), shared...)...)
	bT := b.Transpose(append(slices.Clone(shared), freeB...)...)

	da, ds, db := 1, 1, 1
	var outShape []int
	for _, ix := range freeA {
		d := a.IndSize(ix)
		da *= d
		outShape = append(outShape, d)
	}
	for _, ix := range shared {
		if a.IndSize(ix) != b.IndSize(ix) {
			panic(fmt.Sprintf("%q %d %d", ix, a.IndSize(ix), b.IndSize(ix)))
		}
		ds *= a.IndSize(ix)
	}
	for _, ix := range freeB {
		d := b.IndSize(ix)
		db *= d
		outShape = append(outShape, d)
	}

	var c mat.Dense
	c.Mul(mat.NewDense(da, ds, aT.data), mat.NewDense(ds, db, bT.data))

	outInds := append(slices.Clone(freeA), freeB...)
	return New(denseData(&c, da, db), outInds, outShape)
}

// ContractAll contracts a sequence of tensors pairwise in order.
func ContractAll(ts ...*Dense) *Dense {
	if len(ts) == 0 {
		panic("no tensors")
	}
	acc := ts[0]
	for _, t := range ts[1:] {
		acc = Contract(acc, t)
	}
	return acc
}

// denseData returns the row-major contents of an r x c gonum matrix.
func denseData(m *mat.Dense, r, c int) []float64 {
	raw := m.RawMatrix()
	if raw.Stride == c && len(raw.Data) == r*c {
		return raw.Data
	}
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, raw.Data[i*raw.Stride:i*raw.Stride+c]...)
	}
	return data
}

// AllClose reports whether a and b have the same indices (in any order) and
// elementwise agree within tol.
func AllClose(a, b *Dense, tol float64) bool {
	if len(a.inds) != len(b.inds) {
		return false
	}
	for _, ix := range a.inds {
		if !b.HasInd(ix) {
			return false
		}
	}
	bT := b
	if !slices.Equal(a.inds, b.inds) {
		bT = b.Transpose(a.inds...)
	}
	if !slices.Equal(a.shape, bT.shape) {
		return false
	}
	for i, v := range a.data {
		if math.Abs(v-bT.data[i]) > tol {
			return false
		}
	}
	return true
}
