package raster

import (
	"github.com/mesh-intelligence/ndrbatch/pkg/types"
)

// Kernel computes one output sample from the aligned input samples at a
// single cell. Map only invokes it where every input is valid.
type Kernel func(vals []float32) float32

// MaskedKernel computes one output sample with per-input validity visible.
// Returning ok=false forces the output cell to nodata. MapMasked exists for
// the few operations that define an explicit nodata override (the
// connectivity-index zero rule, zero-safe division); everything else goes
// through Map.
type MaskedKernel func(vals []float32, valid []bool) (v float32, ok bool)

// Map applies fn elementwise over aligned input grids. Any input cell that
// is nodata forces the output cell to outNodata. This blanket rule is the
// invariant every downstream total depends on: compute only on the valid
// mask, broadcast nodata elsewhere.
func Map(inputs []*Grid, outNodata float32, fn Kernel) (*Grid, error) {
	if err := checkAligned(inputs); err != nil {
		return nil, err
	}
	base := inputs[0]
	out := Like(base, outNodata)
	vals := make([]float32, len(inputs))
	for i := range base.Data {
		allValid := true
		for j, in := range inputs {
			v := in.Data[i]
			if v == in.Nodata {
				allValid = false
				break
			}
			vals[j] = v
		}
		if allValid {
			out.Data[i] = fn(vals)
		}
	}
	return out, nil
}

// MapMasked applies fn elementwise with the validity of each input exposed,
// for operations whose nodata policy deviates from the blanket rule.
func MapMasked(inputs []*Grid, outNodata float32, fn MaskedKernel) (*Grid, error) {
	if err := checkAligned(inputs); err != nil {
		return nil, err
	}
	base := inputs[0]
	out := Like(base, outNodata)
	vals := make([]float32, len(inputs))
	valid := make([]bool, len(inputs))
	for i := range base.Data {
		for j, in := range inputs {
			v := in.Data[i]
			vals[j] = v
			valid[j] = v != in.Nodata
		}
		if v, ok := fn(vals, valid); ok {
			out.Data[i] = v
		}
	}
	return out, nil
}

// Reclassify maps integer-coded samples (land-use codes) through table.
// Codes absent from the table become nodata.
func Reclassify(in *Grid, table map[int]float64, outNodata float32) *Grid {
	out := Like(in, outNodata)
	for i, v := range in.Data {
		if v == in.Nodata {
			continue
		}
		if mapped, ok := table[int(v)]; ok {
			out.Data[i] = float32(mapped)
		}
	}
	return out
}

// MapScalar multiplies valid cells by a scalar, preserving nodata.
func MapScalar(in *Grid, scalar float32, outNodata float32) *Grid {
	out := Like(in, outNodata)
	for i, v := range in.Data {
		if v != in.Nodata {
			out.Data[i] = v * scalar
		}
	}
	return out
}

// Clamp raises valid cells below floor up to floor, leaving nodata and
// cells at or above the floor untouched.
func Clamp(in *Grid, floor float32) *Grid {
	out := Like(in, in.Nodata)
	for i, v := range in.Data {
		if v == in.Nodata {
			out.Data[i] = in.Nodata
			continue
		}
		if v < floor {
			out.Data[i] = floor
		} else {
			out.Data[i] = v
		}
	}
	return out
}

func checkAligned(inputs []*Grid) error {
	if len(inputs) == 0 {
		return types.ErrShapeMismatch
	}
	for _, in := range inputs[1:] {
		if !Aligned(inputs[0], in) {
			return types.ErrShapeMismatch
		}
	}
	return nil
}
