// Package objects holds segmented objects and the populations they belong to.
//
// An object's geometry is stored as x-runs: one Run per contiguous stretch of
// voxels along x inside a single (z, y) row. Runs are kept sorted by (Z, Y, X0)
// and merged, so voxel membership, overlap and rasterization are all linear
// merges over two sorted lists.
package objects

import (
	"errors"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
)

// ErrEmptyObject is returned when an object would have no voxels.
var ErrEmptyObject = errors.New("object has no voxels")

// Run is an inclusive stretch of voxels [X0, X1] on row (Z, Y).
type Run struct {
	Z, Y   int
	X0, X1 int
}

// Len returns the number of voxels in the run.
func (r Run) Len() int {
	return r.X1 - r.X0 + 1
}

// rowLess orders runs by row only.
func rowLess(a, b Run) bool {
	if a.Z != b.Z {
		return a.Z < b.Z
	}
	return a.Y < b.Y
}

// Statistic selects which intensity measurement to take over an object's voxels.
type Statistic int

const (
	StatMax Statistic = iota
	StatMean
	StatMin
	StatSum
)

func (s Statistic) String() string {
	switch s {
	case StatMax:
		return "max"
	case StatMean:
		return "mean"
	case StatMin:
		return "min"
	case StatSum:
		return "sum"
	}
	return "unknown"
}

// Object3D is a single segmented region.
type Object3D struct {
	// Label identifies the object inside its population. It changes on Relabel.
	Label int

	// ID is assigned once when the object is created from a label volume and
	// survives relabeling, cloning and dilation. Annotation records are keyed by it.
	ID int

	runs []Run
	bbox models.BoundingBox
	size int
	cal  models.Calibration
}

// NewObject builds an object from runs in any order. Overlapping or touching
// runs on the same row are merged.
func NewObject(label int, runs []Run, cal models.Calibration) (*Object3D, error) {
	for _, r := range runs {
		if r.X1 < r.X0 {
			return nil, models.ErrInvalidRange
		}
	}
	norm := normalizeRuns(runs)
	if len(norm) == 0 {
		return nil, ErrEmptyObject
	}
	return newObject(label, norm, cal), nil
}

// newObject expects runs that are already normalized and non-empty.
func newObject(label int, runs []Run, cal models.Calibration) *Object3D {
	o := &Object3D{Label: label, runs: runs, cal: cal}
	first := runs[0]
	o.bbox = models.BoundingBox{
		XMin: first.X0, XMax: first.X1,
		YMin: first.Y, YMax: first.Y,
		ZMin: first.Z, ZMax: first.Z,
	}
	for _, r := range runs {
		o.size += r.Len()
		o.bbox.XMin = min(o.bbox.XMin, r.X0)
		o.bbox.XMax = max(o.bbox.XMax, r.X1)
		o.bbox.YMin = min(o.bbox.YMin, r.Y)
		o.bbox.YMax = max(o.bbox.YMax, r.Y)
		o.bbox.ZMax = max(o.bbox.ZMax, r.Z)
	}
	return o
}

// normalizeRuns sorts runs and merges the ones that touch on the same row.
func normalizeRuns(runs []Run) []Run {
	if len(runs) == 0 {
		return nil
	}
	sorted := make([]Run, len(runs))
	copy(sorted, runs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Z != sorted[j].Z {
			return sorted[i].Z < sorted[j].Z
		}
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y < sorted[j].Y
		}
		return sorted[i].X0 < sorted[j].X0
	})

	merged := sorted[:1]
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Z == last.Z && r.Y == last.Y && r.X0 <= last.X1+1 {
			last.X1 = max(last.X1, r.X1)
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Runs returns the object's runs. The slice must not be modified.
func (o *Object3D) Runs() []Run {
	return o.runs
}

// Size returns the number of voxels.
func (o *Object3D) Size() int {
	return o.size
}

// BoundingBox returns the inclusive voxel box of the object.
func (o *Object3D) BoundingBox() models.BoundingBox {
	return o.bbox
}

// Calibration returns the voxel size the object's physical measures use.
func (o *Object3D) Calibration() models.Calibration {
	return o.cal
}

// Volume returns the physical volume (area for 2D images).
func (o *Object3D) Volume() float64 {
	return float64(o.size) * o.cal.VoxelVolume()
}

// Planes returns the number of distinct z planes the object touches.
func (o *Object3D) Planes() int {
	n := 0
	lastZ := -1
	for _, r := range o.runs {
		if n == 0 || r.Z != lastZ {
			n++
			lastZ = r.Z
		}
	}
	return n
}

// Each calls fn for every voxel in (z, y, x) order.
func (o *Object3D) Each(fn func(x, y, z int)) {
	for _, r := range o.runs {
		for x := r.X0; x <= r.X1; x++ {
			fn(x, r.Y, r.Z)
		}
	}
}

// Contains reports whether the voxel belongs to the object.
func (o *Object3D) Contains(x, y, z int) bool {
	i := sort.Search(len(o.runs), func(i int) bool {
		r := o.runs[i]
		if r.Z != z {
			return r.Z > z
		}
		if r.Y != y {
			return r.Y > y
		}
		return r.X1 >= x
	})
	if i == len(o.runs) {
		return false
	}
	r := o.runs[i]
	return r.Z == z && r.Y == y && r.X0 <= x && x <= r.X1
}

// Clone returns a copy of the object. The runs are shared, they are never mutated.
func (o *Object3D) Clone() *Object3D {
	c := *o
	return &c
}

// samples collects the intensities under the object. Voxels outside vol are skipped.
func (o *Object3D) samples(vol *models.Volume) []float64 {
	values := make([]float64, 0, o.size)
	dims := vol.Dims()
	for _, r := range o.runs {
		if r.Z < 0 || r.Z >= dims.Depth || r.Y < 0 || r.Y >= dims.Height {
			continue
		}
		x0 := max(r.X0, 0)
		x1 := min(r.X1, dims.Width-1)
		if x0 > x1 {
			continue
		}
		row := dims.Index(0, r.Y, r.Z)
		values = append(values, vol.Data[row+x0:row+x1+1]...)
	}
	return values
}

// Intensity measures a statistic of vol over the object's voxels.
// An object entirely outside vol measures 0.
func (o *Object3D) Intensity(vol *models.Volume, s Statistic) float64 {
	values := o.samples(vol)
	if len(values) == 0 {
		return 0
	}
	switch s {
	case StatMax:
		return floats.Max(values)
	case StatMin:
		return floats.Min(values)
	case StatSum:
		return floats.Sum(values)
	default:
		return stat.Mean(values, nil)
	}
}
