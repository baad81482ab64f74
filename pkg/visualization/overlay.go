// Package visualization renders object populations as colored overlays.
package visualization

import (
	"fmt"
	"image"
	"image/color"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
	"github.com/orion-cirb/Coloc-3DCells/pkg/imageio"
	"github.com/orion-cirb/Coloc-3DCells/pkg/objects"
)

// Layer colors of the object overlays
var (
	Red   = color.RGBA{R: 255, A: 255}
	Green = color.RGBA{G: 255, A: 255}
	Blue  = color.RGBA{B: 255, A: 255}
	Gray  = color.RGBA{R: 96, G: 96, B: 96, A: 255}
)

// layer is one population rasterized as a mask.
type layer struct {
	mask  *models.LabelVolume
	color color.RGBA
}

// Overlay merges populations of one image into an RGB stack. Where layers
// overlap, each color channel keeps its brightest value.
type Overlay struct {
	dims   models.Dims
	layers []layer
}

// NewOverlay creates an empty overlay of the given extent.
func NewOverlay(dims models.Dims) *Overlay {
	return &Overlay{dims: dims}
}

// Dims returns the extent of the overlay.
func (o *Overlay) Dims() models.Dims {
	return o.dims
}

// Add draws pop in col. Empty populations add nothing.
func (o *Overlay) Add(pop *objects.Population, col color.RGBA) {
	if pop == nil || pop.Len() == 0 {
		return
	}
	mask := models.NewLabelVolume(o.dims.Width, o.dims.Height, o.dims.Depth)
	pop.DrawValueInto(mask, 1)
	o.layers = append(o.layers, layer{mask: mask, color: col})
}

// Layers returns the number of non-empty layers.
func (o *Overlay) Layers() int {
	return len(o.layers)
}

// colorAt merges the layers covering voxel i.
func (o *Overlay) colorAt(i int) color.RGBA {
	c := color.RGBA{A: 255}
	for _, l := range o.layers {
		if l.mask.Data[i] == 0 {
			continue
		}
		c.R = max(c.R, l.color.R)
		c.G = max(c.G, l.color.G)
		c.B = max(c.B, l.color.B)
	}
	return c
}

// ExtractSlice extracts a 2D slice of the overlay along the specified axis
func (o *Overlay) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	d := o.dims

	switch axis {
	case "x", "X":
		// YZ plane
		if position >= d.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, d.Width)
		}
		img := image.NewRGBA(image.Rect(0, 0, d.Depth, d.Height))
		for y := 0; y < d.Height; y++ {
			for z := 0; z < d.Depth; z++ {
				img.SetRGBA(z, y, o.colorAt(d.Index(position, y, z)))
			}
		}
		return img, nil

	case "y", "Y":
		// XZ plane
		if position >= d.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, d.Height)
		}
		img := image.NewRGBA(image.Rect(0, 0, d.Width, d.Depth))
		for z := 0; z < d.Depth; z++ {
			for x := 0; x < d.Width; x++ {
				img.SetRGBA(x, z, o.colorAt(d.Index(x, position, z)))
			}
		}
		return img, nil

	case "z", "Z":
		// XY plane
		if position >= d.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, d.Depth)
		}
		img := image.NewRGBA(image.Rect(0, 0, d.Width, d.Height))
		for y := 0; y < d.Height; y++ {
			for x := 0; x < d.Width; x++ {
				img.SetRGBA(x, y, o.colorAt(d.Index(x, y, position)))
			}
		}
		return img, nil
	}
	return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// SaveSliceSequence extracts every slice along axis and saves them as TIFF
// files in outputDir.
func (o *Overlay) SaveSliceSequence(axis string, outputDir string) error {
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = o.dims.Width
	case "y", "Y":
		maxPos = o.dims.Height
	case "z", "Z":
		maxPos = o.dims.Depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	slices := make([]image.Image, 0, maxPos)
	for pos := 0; pos < maxPos; pos++ {
		img, err := o.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}
		slices = append(slices, img)
	}
	return imageio.WriteSlices(outputDir, "slice_"+axis, slices)
}

// SaveLabels draws pop with its own labels into a stack of extent dims and
// saves it as 16-bit TIFF planes named labels_NNN.tif in outputDir.
func SaveLabels(pop *objects.Population, dims models.Dims, outputDir string) error {
	lv := models.NewLabelVolume(dims.Width, dims.Height, dims.Depth)
	pop.DrawInto(lv)
	planes, err := imageio.LabelPlanes(lv)
	if err != nil {
		return err
	}
	return imageio.WriteSlices(outputDir, "labels", planes)
}
