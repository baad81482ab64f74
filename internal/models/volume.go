package models

import "fmt"

// Calibration is the physical size of one voxel of an image.
// It is read once per image and handed to every population built from it.
type Calibration struct {
	// X, Y and Z are the voxel edge lengths in Unit
	X, Y, Z float64

	// Unit is the physical unit of X, Y and Z (usually "microns")
	Unit string
}

// Uncalibrated is the identity calibration: volumes are voxel counts.
var Uncalibrated = Calibration{X: 1, Y: 1, Z: 1, Unit: "pixel"}

// VoxelVolume returns the physical volume of a single voxel.
// For 2D images Z is 1, so this is the pixel area.
func (c Calibration) VoxelVolume() float64 {
	return c.X * c.Y * c.Z
}

// Valid reports whether every voxel edge is strictly positive.
func (c Calibration) Valid() bool {
	return c.X > 0 && c.Y > 0 && c.Z > 0
}

// Dims is the voxel extent of an image.
type Dims struct {
	Width, Height, Depth int
}

// Contains reports whether (x, y, z) lies inside [0,W) x [0,H) x [0,D).
func (d Dims) Contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < d.Width && y < d.Height && z < d.Depth
}

// Len returns the number of voxels.
func (d Dims) Len() int {
	return d.Width * d.Height * d.Depth
}

// Index returns the offset of (x, y, z) in a flat z-major array.
func (d Dims) Index(x, y, z int) int {
	return z*d.Width*d.Height + y*d.Width + x
}

func (d Dims) String() string {
	return fmt.Sprintf("%dx%dx%d", d.Width, d.Height, d.Depth)
}

// Volume is a single channel of raw intensities
type Volume struct {
	// Data holds the voxels as a 1D array in row-major order, z*W*H + y*W + x
	Data []float64

	// Width is the width of the volume in voxels
	Width int

	// Height is the height of the volume in voxels
	Height int

	// Depth is the number of z planes (1 for a 2D image)
	Depth int

	// Calibration is the physical voxel size
	Calibration Calibration
}

// NewVolume allocates a zeroed volume.
func NewVolume(width, height, depth int, cal Calibration) *Volume {
	return &Volume{
		Data:        make([]float64, width*height*depth),
		Width:       width,
		Height:      height,
		Depth:       depth,
		Calibration: cal,
	}
}

// Dims returns the voxel extent of the volume.
func (v *Volume) Dims() Dims {
	return Dims{Width: v.Width, Height: v.Height, Depth: v.Depth}
}

// At returns the intensity at (x, y, z). The caller is responsible for bounds.
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[z*v.Width*v.Height+y*v.Width+x]
}

// Set stores an intensity at (x, y, z).
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[z*v.Width*v.Height+y*v.Width+x] = value
}

// Plane returns a copy of z plane 'z' as a single-plane volume.
func (v *Volume) Plane(z int) *Volume {
	plane := NewVolume(v.Width, v.Height, 1, v.Calibration)
	size := v.Width * v.Height
	copy(plane.Data, v.Data[z*size:(z+1)*size])
	return plane
}

// LabelVolume is the output of a segmenter: 0 is background and every positive
// value is one object instance.
type LabelVolume struct {
	// Data holds the labels in the same layout as Volume.Data
	Data []int32

	// Width, Height, Depth are the dimensions in voxels
	Width, Height, Depth int
}

// NewLabelVolume allocates an empty (all background) label volume.
func NewLabelVolume(width, height, depth int) *LabelVolume {
	return &LabelVolume{
		Data:   make([]int32, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// Dims returns the voxel extent of the label volume.
func (l *LabelVolume) Dims() Dims {
	return Dims{Width: l.Width, Height: l.Height, Depth: l.Depth}
}

// At returns the label at (x, y, z).
func (l *LabelVolume) At(x, y, z int) int32 {
	return l.Data[z*l.Width*l.Height+y*l.Width+x]
}

// Set stores a label at (x, y, z).
func (l *LabelVolume) Set(x, y, z int, label int32) {
	l.Data[z*l.Width*l.Height+y*l.Width+x] = label
}

// BoundingBox is an inclusive voxel box.
type BoundingBox struct {
	XMin, XMax int
	YMin, YMax int
	ZMin, ZMax int
}

// Overlaps reports whether two inclusive boxes intersect.
func (b BoundingBox) Overlaps(o BoundingBox) bool {
	return b.XMin <= o.XMax && o.XMin <= b.XMax &&
		b.YMin <= o.YMax && o.YMin <= b.YMax &&
		b.ZMin <= o.ZMax && o.ZMin <= b.ZMax
}

// Inside reports whether the box fits in dims.
func (b BoundingBox) Inside(d Dims) bool {
	return b.XMin >= 0 && b.YMin >= 0 && b.ZMin >= 0 &&
		b.XMax < d.Width && b.YMax < d.Height && b.ZMax < d.Depth
}
