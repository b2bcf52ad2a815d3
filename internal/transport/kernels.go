// Package transport implements the hydrological transport model: the
// upslope and downslope connectivity metrics, retention efficiency routing,
// the nutrient delivery ratio, and per-scenario load and export rasters.
package transport

import (
	"math"

	"github.com/mesh-intelligence/ndrbatch/internal/raster"
)

// DUp computes the upslope transport metric
//
//	D_up = (slope_accum / flow_accum) * sqrt(flow_accum * pixel_area)
//
// the mean upslope slope times the square root of contributing area.
// Valid wherever flow accumulation is valid; division by zero cannot occur
// because accumulation is at least 1 on valid cells.
func DUp(slopeAccum, flowAccum *raster.Grid, pixelArea float64, outNodata float32) (*raster.Grid, error) {
	return raster.MapMasked([]*raster.Grid{slopeAccum, flowAccum}, outNodata,
		func(vals []float32, valid []bool) (float32, bool) {
			if !valid[1] {
				return 0, false
			}
			sa, fa := float64(vals[0]), float64(vals[1])
			return float32(sa / fa * math.Sqrt(fa*pixelArea)), true
		})
}

// ChannelMask thresholds flow accumulation into the stream network:
// 1 where accumulation meets the contributing-cell threshold, 0 on valid
// cells below it, nodata preserved.
func ChannelMask(flowAccum *raster.Grid, threshold, outNodata float32) (*raster.Grid, error) {
	return raster.Map([]*raster.Grid{flowAccum}, outNodata,
		func(vals []float32) float32 {
			if vals[0] >= threshold {
				return 1
			}
			return 0
		})
}

// DDnPerPixel computes each cell's contribution to the downslope metric:
// flow-path distance across the cell divided by its slope. Division is
// zero-safe: a zero denominator yields nodata rather than infinity (the
// upstream slope floor makes that unreachable in practice).
func DDnPerPixel(flowDist, slope *raster.Grid, outNodata float32) (*raster.Grid, error) {
	return raster.MapMasked([]*raster.Grid{flowDist, slope}, outNodata,
		func(vals []float32, valid []bool) (float32, bool) {
			if !valid[0] || !valid[1] || vals[1] == 0 {
				return 0, false
			}
			return vals[0] / vals[1], true
		})
}

// IC computes the connectivity index log10(D_up / D_dn). An exact zero in
// either raw operand collapses to IC = 0 before any validity check, even
// when the other operand is nodata: zero distance means connectivity is
// perfect or undefined, and the model treats it as neutral rather than
// nodata. The output carries its own nodata sentinel because 0 is a
// legitimate IC value and the transport sentinel would conflate the two.
func IC(dUp, dDn *raster.Grid, icNodata float32) (*raster.Grid, error) {
	return raster.MapMasked([]*raster.Grid{dUp, dDn}, icNodata,
		func(vals []float32, valid []bool) (float32, bool) {
			up, dn := vals[0], vals[1]
			if up == 0 || dn == 0 {
				return 0, true
			}
			if !valid[0] || !valid[1] {
				return 0, false
			}
			if up < 0 || dn < 0 {
				return 0, false
			}
			return float32(math.Log10(float64(up) / float64(dn))), true
		})
}

// NDR computes the nutrient delivery ratio
//
//	NDR = (1 - eff') / (1 + exp((IC - IC0) / k))
//
// where IC0 is the midpoint of the IC raster's global range, computed once
// per watershed. Valid only where both the downstream retention efficiency
// and IC are valid.
func NDR(retEff, ic *raster.Grid, k float64, outNodata float32) (*raster.Grid, error) {
	icMin, icMax, ok := ic.MinMaxValid()
	if !ok {
		return raster.Like(retEff, outNodata), nil
	}
	ic0 := (float64(icMax) + float64(icMin)) / 2
	return raster.Map([]*raster.Grid{retEff, ic}, outNodata,
		func(vals []float32) float32 {
			eff, icv := float64(vals[0]), float64(vals[1])
			return float32((1 - eff) / (1 + math.Exp((icv-ic0)/k)))
		})
}

// AgLoad substitutes the agricultural-load sentinel in a reclassified base
// load raster with the scenario's agricultural-load raster value at the
// same cell. Non-sentinel cells keep the base value.
func AgLoad(baseLoad, agLoad *raster.Grid, sentinelCode int, outNodata float32) (*raster.Grid, error) {
	sentinel := float32(sentinelCode)
	return raster.MapMasked([]*raster.Grid{baseLoad, agLoad}, outNodata,
		func(vals []float32, valid []bool) (float32, bool) {
			if !valid[0] {
				return 0, false
			}
			if vals[0] == sentinel {
				if !valid[1] {
					return 0, false
				}
				return vals[1], true
			}
			return vals[0], true
		})
}

// Multiply is the nodata-aware elementwise product used for the modified
// load (load x precipitation) and export (modified load x NDR) steps.
func Multiply(inputs []*raster.Grid, outNodata float32) (*raster.Grid, error) {
	return raster.Map(inputs, outNodata, func(vals []float32) float32 {
		prod := float32(1)
		for _, v := range vals {
			prod *= v
		}
		return prod
	})
}

// AggregateExport sums valid export cells (mass per hectare) times pixel
// area in hectares, yielding the watershed's total exported mass for one
// scenario.
func AggregateExport(export *raster.Grid, pixelAreaHa float64) float64 {
	return export.SumValid() * pixelAreaHa
}
