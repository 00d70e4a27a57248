package exact

import (
	"math"
	"math/cmplx"
	"testing"

	"qtebd/tebd"
	"qtebd/tn"
)

func TestHamMatrixIsing(t *testing.T) {
	t.Parallel()
	h, err := tebd.HamIsing(tebd.EdgesChain(2, false), 1, 0)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	m, err := HamMatrix(h)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	want := [4]float64{-1, 1, 1, -1}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var w float64
			if i == j {
				w = want[i]
			}
			if g := m.At(i, j); cmplx.Abs(complex128(g)-complex(w, 0)) > 1e-6 {
				t.Fatalf("(%d, %d): %v, expected %v", i, j, g, w)
			}
		}
	}
}

func TestStateVectorBasisState(t *testing.T) {
	t.Parallel()
	v := tn.ProductVector(tebd.EdgesChain(2, false), 2, nil)
	vec, err := StateVector(v)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for i := 0; i < 4; i++ {
		var w float64
		if i == 0 {
			w = 1
		}
		if g := vec.At(i, 0); cmplx.Abs(complex128(g)-complex(w, 0)) > 1e-6 {
			t.Fatalf("%d: %v, expected %v", i, g, w)
		}
	}
}

func TestEnergyBasisState(t *testing.T) {
	t.Parallel()
	h, err := tebd.HamIsing(tebd.EdgesChain(2, false), 1, 0)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	v := tn.ProductVector(tebd.EdgesChain(2, false), 2, nil)
	en, err := Energy(v, h)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if math.Abs(en-(-1)) > 1e-6 {
		t.Fatalf("%v, expected -1", en)
	}
}

func TestGroundEnergyTransverseIsing(t *testing.T) {
	t.Parallel()
	// Two site transverse field Ising with j=1, h=0.5 has ground
	// energy -sqrt(2).
	h, err := tebd.HamIsing(tebd.EdgesChain(2, false), 1, 0.5)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	en, err := GroundEnergy(h)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if math.Abs(en-(-math.Sqrt2)) > 1e-3 {
		t.Fatalf("%v, expected %v", en, -math.Sqrt2)
	}
}
