// Package imageio reads and writes z-stacks stored as one 2D image per plane.
//
// An image is a directory under the input root. Each channel is a
// subdirectory of the image holding its planes as TIFF or PNG files, ordered
// by the number in their file name:
//
//	root/
//	  mouse1/
//	    calibration.yaml
//	    dapi/slice_000.tif ...
//	    gfp/slice_000.tif ...
package imageio

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
)

// sliceExts are the plane file extensions recognized in a channel directory.
var sliceExts = map[string]bool{
	".tif":  true,
	".tiff": true,
	".png":  true,
}

// ListSlices returns the plane files of dir, sorted by slice number.
func ListSlices(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if sliceExts[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no TIFF or PNG slices found in %s", dir)
	}

	sort.SliceStable(files, func(i, j int) bool {
		ni, nj := extractNumber(files[i]), extractNumber(files[j])
		if ni != nj {
			return ni < nj
		}
		return files[i] < files[j]
	})

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = filepath.Join(dir, f)
	}
	return paths, nil
}

// extractNumber returns the digits of a file name read as one number, or 0.
func extractNumber(filename string) int {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}

// loadImage decodes a TIFF or PNG file.
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return png.Decode(file)
	default:
		return tiff.Decode(file)
	}
}

// pixelValues returns the raw gray levels of img in row-major order.
func pixelValues(img image.Image) []float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	result := make([]float64, width*height)

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				result[y*width+x] = float64(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	case *image.Gray:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				result[y*width+x] = float64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
				result[y*width+x] = float64(g.Y)
			}
		}
	}
	return result
}

// readStack decodes every plane of dir and checks that they share one size.
func readStack(ctx context.Context, dir string) ([][]float64, int, int, error) {
	paths, err := ListSlices(dir)
	if err != nil {
		return nil, 0, 0, err
	}

	planes := make([][]float64, 0, len(paths))
	width, height := 0, 0
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, 0, 0, err
		}
		img, err := loadImage(p)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("failed to load slice %s: %w", filepath.Base(p), err)
		}
		b := img.Bounds()
		if i == 0 {
			width, height = b.Dx(), b.Dy()
		} else if b.Dx() != width || b.Dy() != height {
			return nil, 0, 0, fmt.Errorf("slice %s is %dx%d, expected %dx%d",
				filepath.Base(p), b.Dx(), b.Dy(), width, height)
		}
		planes = append(planes, pixelValues(img))
	}
	return planes, width, height, nil
}

// ReadVolume loads the z-stack in dir as an intensity volume.
func ReadVolume(ctx context.Context, dir string, cal models.Calibration) (*models.Volume, error) {
	planes, width, height, err := readStack(ctx, dir)
	if err != nil {
		return nil, err
	}
	vol := models.NewVolume(width, height, len(planes), cal)
	size := width * height
	for z, plane := range planes {
		copy(vol.Data[z*size:], plane)
	}
	return vol, nil
}

// ReadLabels loads the z-stack in dir as a label volume; gray level = label.
func ReadLabels(ctx context.Context, dir string) (*models.LabelVolume, error) {
	planes, width, height, err := readStack(ctx, dir)
	if err != nil {
		return nil, err
	}
	lv := models.NewLabelVolume(width, height, len(planes))
	size := width * height
	for z, plane := range planes {
		for i, v := range plane {
			lv.Data[z*size+i] = int32(v)
		}
	}
	return lv, nil
}

// WriteSlices encodes images as numbered TIFF files in dir.
func WriteSlices(dir, prefix string, planes []image.Image) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	for z, img := range planes {
		path := filepath.Join(dir, fmt.Sprintf("%s_%03d.tif", prefix, z))
		if err := writeTIFF(path, img); err != nil {
			return err
		}
	}
	return nil
}

func writeTIFF(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	if err := tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return file.Close()
}

// VolumePlanes converts each plane of vol to a 16-bit gray image, clamping
// values to the 16-bit range.
func VolumePlanes(vol *models.Volume) []image.Image {
	planes := make([]image.Image, vol.Depth)
	for z := 0; z < vol.Depth; z++ {
		img := image.NewGray16(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				v := vol.At(x, y, z)
				v = min(max(v, 0), 65535)
				img.SetGray16(x, y, color.Gray16{Y: uint16(v)})
			}
		}
		planes[z] = img
	}
	return planes
}

// LabelPlanes converts each plane of lv to a 16-bit gray image. Labels above
// 65535 do not fit and give ErrInvalidRange.
func LabelPlanes(lv *models.LabelVolume) ([]image.Image, error) {
	planes := make([]image.Image, lv.Depth)
	for z := 0; z < lv.Depth; z++ {
		img := image.NewGray16(image.Rect(0, 0, lv.Width, lv.Height))
		for y := 0; y < lv.Height; y++ {
			for x := 0; x < lv.Width; x++ {
				l := lv.At(x, y, z)
				if l > math.MaxUint16 {
					return nil, fmt.Errorf("label %d at (%d,%d,%d) exceeds 16 bits: %w", l, x, y, z, models.ErrInvalidRange)
				}
				img.SetGray16(x, y, color.Gray16{Y: uint16(l)})
			}
		}
		planes[z] = img
	}
	return planes, nil
}
