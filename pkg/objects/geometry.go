package objects

import (
	"math"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
)

// Overlap returns the number of voxels shared by a and b.
func Overlap(a, b *Object3D) int {
	if !a.bbox.Overlaps(b.bbox) {
		return 0
	}
	ar, br := a.runs, b.runs
	n := 0
	i, j := 0, 0
	for i < len(ar) && j < len(br) {
		ra, rb := ar[i], br[j]
		if rowLess(ra, rb) {
			i++
			continue
		}
		if rowLess(rb, ra) {
			j++
			continue
		}
		lo := max(ra.X0, rb.X0)
		hi := min(ra.X1, rb.X1)
		if hi >= lo {
			n += hi - lo + 1
		}
		// Advance whichever run ends first; the other may still overlap the next one.
		if ra.X1 < rb.X1 {
			i++
		} else {
			j++
		}
	}
	return n
}

// Dilate grows the object by an ellipsoid with semi-axes rx, ry, rz (voxels)
// and drops every voxel outside dims. The result keeps the label, ID and
// calibration. When all radii are 0 the receiver itself is returned.
func (o *Object3D) Dilate(rx, ry, rz int, dims models.Dims) *Object3D {
	if rx == 0 && ry == 0 && rz == 0 {
		return o
	}

	type offset struct{ dy, dz, dx int }
	var offsets []offset
	for dz := -rz; dz <= rz; dz++ {
		for dy := -ry; dy <= ry; dy++ {
			t := 1.0 - ratio2(dz, rz) - ratio2(dy, ry)
			if t < 0 {
				continue
			}
			dx := int(math.Floor(float64(rx)*math.Sqrt(t) + 1e-9))
			offsets = append(offsets, offset{dy: dy, dz: dz, dx: dx})
		}
	}

	grown := make([]Run, 0, len(o.runs)*len(offsets))
	for _, r := range o.runs {
		for _, off := range offsets {
			z := r.Z + off.dz
			y := r.Y + off.dy
			if z < 0 || z >= dims.Depth || y < 0 || y >= dims.Height {
				continue
			}
			x0 := max(r.X0-off.dx, 0)
			x1 := min(r.X1+off.dx, dims.Width-1)
			if x0 > x1 {
				continue
			}
			grown = append(grown, Run{Z: z, Y: y, X0: x0, X1: x1})
		}
	}

	runs := normalizeRuns(grown)
	if len(runs) == 0 {
		// The source lies entirely outside dims; nothing survives the clip.
		return nil
	}
	d := newObject(o.Label, runs, o.cal)
	d.ID = o.ID
	return d
}

// ratio2 returns (d/r)^2, with a zero radius only admitting d == 0.
func ratio2(d, r int) float64 {
	if r == 0 {
		if d == 0 {
			return 0
		}
		return math.Inf(1)
	}
	f := float64(d) / float64(r)
	return f * f
}
