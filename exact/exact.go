// Package exact builds dense statevectors and Hamiltonian matrices for
// small systems, used to cross check the tensor network estimators and
// to obtain reference ground energies by Arnoldi iteration.
package exact

import (
	"github.com/fumin/tensor"
	"github.com/pkg/errors"
	"qtebd/tebd"
	"qtebd/tn"
)

// StateVector flattens the network state into a dense column vector
// over the computational basis, sites in ascending order with the first
// site's index slowest.
func StateVector(v *tn.Vector) (*tensor.Dense, error) {
	sites := v.Sites()
	dt, err := v.ToDense(sites)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	data := dt.Data()
	out := tensor.Zeros(len(data), 1)
	for i, x := range data {
		out.SetAt([]int{i, 0}, complex(float32(x), 0))
	}
	return out, nil
}

// HamMatrix assembles the Hamiltonian as a dense matrix over the
// computational basis of its sites, ascending, first site slowest.
func HamMatrix(h *tebd.Ham) (*tensor.Dense, error) {
	sites := h.Sites()
	pos := make(map[tn.Site]int, len(sites))
	for i, s := range sites {
		pos[s] = i
	}
	d := h.PhysDim()
	dim := 1
	for range sites {
		dim *= d
	}
	stride := make([]int, len(sites))
	acc := 1
	for i := len(sites) - 1; i >= 0; i-- {
		stride[i] = acc
		acc *= d
	}
	m := tensor.Zeros(dim, dim)
	for _, e := range h.Edges() {
		t, _ := h.Term(e)
		pa, pb := pos[e[0]], pos[e[1]]
		for row := 0; row < dim; row++ {
			ra := row / stride[pa] % d
			rb := row / stride[pb] % d
			for ca := 0; ca < d; ca++ {
				for cb := 0; cb < d; cb++ {
					val := t.At(ra*d+rb, ca*d+cb)
					if val == 0 {
						continue
					}
					col := row + (ca-ra)*stride[pa] + (cb-rb)*stride[pb]
					ij := []int{row, col}
					m.SetAt(ij, m.At(row, col)+complex(float32(val), 0))
				}
			}
		}
	}
	return m, nil
}

// Energy returns <v|H|v> / <v|v> by dense contraction. The state must
// live on exactly the sites of the Hamiltonian.
func Energy(v *tn.Vector, h *tebd.Ham) (float64, error) {
	vs, hs := v.Sites(), h.Sites()
	if len(vs) != len(hs) {
		return 0, errors.Errorf("state has %d sites, hamiltonian %d", len(vs), len(hs))
	}
	for i := range vs {
		if vs[i] != hs[i] {
			return 0, errors.Errorf("site mismatch %s vs %s", vs[i], hs[i])
		}
	}
	vec, err := StateVector(v)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	m, err := HamMatrix(h)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	hv := tensor.Product(tensor.Zeros(1), m, vec, [][2]int{{1, 0}})
	num := tensor.Product(tensor.Zeros(1), vec.Conj(), hv, [][2]int{{0, 0}})
	den := tensor.Product(tensor.Zeros(1), vec.Conj(), vec, [][2]int{{0, 0}})
	return float64(real(num.At(0, 0)) / real(den.At(0, 0))), nil
}

// GroundEnergy returns the lowest eigenvalue of the Hamiltonian by
// Arnoldi iteration on its dense matrix.
func GroundEnergy(h *tebd.Ham) (float64, error) {
	m, err := HamMatrix(h)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	eigvals, eigvecs := tensor.Zeros(1), tensor.Zeros(1)
	var bufs [7]*tensor.Dense
	for i := range bufs {
		bufs[i] = tensor.Zeros(1)
	}
	if err := tensor.Arnoldi(eigvals, eigvecs, m, 1, bufs); err != nil {
		return 0, errors.Wrap(err, "")
	}
	return float64(real(eigvals.At(0))), nil
}
