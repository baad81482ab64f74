package objects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
)

// newBoxLabels paints axis-aligned boxes into a label volume.
// Each box is {label, x0, y0, z0, x1, y1, z1} with inclusive bounds.
func newBoxLabels(w, h, d int, boxes ...[7]int) *models.LabelVolume {
	lv := models.NewLabelVolume(w, h, d)
	for _, b := range boxes {
		for z := b[3]; z <= b[6]; z++ {
			for y := b[2]; y <= b[5]; y++ {
				for x := b[1]; x <= b[4]; x++ {
					lv.Set(x, y, z, int32(b[0]))
				}
			}
		}
	}
	return lv
}

func isotropic(size float64) models.Calibration {
	return models.Calibration{X: size, Y: size, Z: size, Unit: "microns"}
}

func TestFromLabelVolume(t *testing.T) {
	// Three objects of 8, 27 and 1 voxels; label 7 is not contiguous with 3
	lv := newBoxLabels(10, 10, 5,
		[7]int{3, 0, 0, 0, 1, 1, 1},
		[7]int{7, 4, 4, 1, 6, 6, 3},
		[7]int{9, 9, 9, 4, 9, 9, 4},
	)

	cal := isotropic(0.25)
	pop := FromLabelVolume(lv, cal)
	require.Equal(t, 3, pop.Len())
	assert.Equal(t, []int{3, 7, 9}, pop.Labels())

	voxel := 0.25 * 0.25 * 0.25
	expected := map[int]int{3: 8, 7: 27, 9: 1}
	for label, size := range expected {
		obj, ok := pop.GetByLabel(label)
		require.True(t, ok, "label %d", label)
		assert.Equal(t, size, obj.Size())
		assert.InDelta(t, float64(size)*voxel, obj.Volume(), 1e-6)
	}

	obj, _ := pop.GetByLabel(7)
	assert.Equal(t, models.BoundingBox{XMin: 4, XMax: 6, YMin: 4, YMax: 6, ZMin: 1, ZMax: 3}, obj.BoundingBox())
	assert.Equal(t, 1, obj.ID)
	assert.Equal(t, 3, obj.Planes())
	assert.True(t, obj.Contains(5, 5, 2))
	assert.False(t, obj.Contains(7, 5, 2))
}

func TestFromLabelVolumeEmpty(t *testing.T) {
	pop := FromLabelVolume(models.NewLabelVolume(4, 4, 2), models.Uncalibrated)
	if pop.Len() != 0 {
		t.Errorf("Expected empty population, got %d objects", pop.Len())
	}
}

func TestFromLabelVolumeAdjacentLabels(t *testing.T) {
	// Two labels touching on the same row must not merge into one run
	lv := models.NewLabelVolume(6, 1, 1)
	copy(lv.Data, []int32{1, 1, 2, 2, 2, 1})
	pop := FromLabelVolume(lv, models.Uncalibrated)
	require.Equal(t, 2, pop.Len())

	one, _ := pop.GetByLabel(1)
	assert.Equal(t, []Run{{Z: 0, Y: 0, X0: 0, X1: 1}, {Z: 0, Y: 0, X0: 5, X1: 5}}, one.Runs())
	two, _ := pop.GetByLabel(2)
	assert.Equal(t, 3, two.Size())
}

func TestNewObjectMergesRuns(t *testing.T) {
	obj, err := NewObject(1, []Run{
		{Z: 0, Y: 0, X0: 5, X1: 7},
		{Z: 0, Y: 0, X0: 0, X1: 4},
		{Z: 0, Y: 1, X0: 2, X1: 3},
	}, models.Uncalibrated)
	require.NoError(t, err)
	assert.Equal(t, []Run{{Z: 0, Y: 0, X0: 0, X1: 7}, {Z: 0, Y: 1, X0: 2, X1: 3}}, obj.Runs())
	assert.Equal(t, 10, obj.Size())

	_, err = NewObject(1, nil, models.Uncalibrated)
	assert.ErrorIs(t, err, ErrEmptyObject)

	_, err = NewObject(1, []Run{{X0: 3, X1: 1}}, models.Uncalibrated)
	assert.ErrorIs(t, err, models.ErrInvalidRange)
}

func TestRelabelIsDense(t *testing.T) {
	for n := 0; n <= 6; n++ {
		lv := models.NewLabelVolume(2*n+1, 1, 1)
		for i := 0; i < n; i++ {
			// Sparse labels: 10, 20, 30...
			lv.Data[2*i] = int32(10 * (i + 1))
		}
		pop := FromLabelVolume(lv, models.Uncalibrated)
		pop.Relabel()
		// Drop every other object
		pop.RemoveIf(func(o *Object3D) bool { return o.Label%2 == 0 })
		pop.Relabel()

		for i, label := range pop.Labels() {
			if label != i+1 {
				t.Errorf("n=%d: expected label %d at position %d, got %d", n, i+1, i, label)
			}
			obj, ok := pop.GetByLabel(label)
			if !ok || obj != pop.At(i) {
				t.Errorf("n=%d: index lookup for label %d is stale", n, label)
			}
		}
	}
}

func TestFilterBySize(t *testing.T) {
	lv := models.NewLabelVolume(40, 1, 1)
	// Sizes 1, 2, 4, 8, 16
	x := 0
	for label, size := range []int{1, 2, 4, 8, 16} {
		for i := 0; i < size; i++ {
			lv.Data[x] = int32(label + 1)
			x++
		}
	}
	all := FromLabelVolume(lv, isotropic(0.5))
	before := all.Objects()

	pop := FromLabelVolume(lv, isotropic(0.5))
	removed, err := pop.FilterBySize(2*0.125, 8*0.125)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, []int{1, 2, 3}, pop.Labels())

	kept := map[int]bool{}
	for _, obj := range pop.Objects() {
		kept[obj.ID] = true
		vol := obj.Volume()
		if vol < 2*0.125 || vol > 8*0.125 {
			t.Errorf("Object %d with volume %f should have been removed", obj.ID, vol)
		}
	}
	for _, obj := range before {
		if kept[obj.ID] {
			continue
		}
		vol := obj.Volume()
		if vol >= 2*0.125 && vol <= 8*0.125 {
			t.Errorf("Object %d with volume %f should have been kept", obj.ID, vol)
		}
	}
}

func TestFilterBySizeInvalidRange(t *testing.T) {
	pop := NewPopulation(models.Uncalibrated)
	_, err := pop.FilterBySize(10, 1)
	assert.ErrorIs(t, err, models.ErrInvalidRange)
}

func TestFilterByIntensity(t *testing.T) {
	lv := newBoxLabels(6, 1, 1,
		[7]int{1, 0, 0, 0, 1, 0, 0},
		[7]int{2, 2, 0, 0, 3, 0, 0},
		[7]int{3, 4, 0, 0, 5, 0, 0},
	)
	vol := models.NewVolume(6, 1, 1, models.Uncalibrated)
	copy(vol.Data, []float64{10, 100, 50, 60, 200, 0})

	pop := FromLabelVolume(lv, models.Uncalibrated)
	// Max over objects is 100, 60, 200; threshold is exclusive
	removed := pop.FilterByIntensity(vol, 100, StatMax)
	assert.Equal(t, 2, removed)
	require.Equal(t, 1, pop.Len())
	assert.Equal(t, 2, pop.At(0).ID)
	assert.Equal(t, 1, pop.At(0).Label)
}

func TestIntensityStatistics(t *testing.T) {
	obj, err := NewObject(1, []Run{{Z: 0, Y: 0, X0: 0, X1: 3}}, models.Uncalibrated)
	require.NoError(t, err)
	vol := models.NewVolume(4, 1, 1, models.Uncalibrated)
	copy(vol.Data, []float64{1, 2, 3, 6})

	assert.Equal(t, 6.0, obj.Intensity(vol, StatMax))
	assert.Equal(t, 1.0, obj.Intensity(vol, StatMin))
	assert.Equal(t, 12.0, obj.Intensity(vol, StatSum))
	assert.Equal(t, 3.0, obj.Intensity(vol, StatMean))

	pop := NewPopulation(models.Uncalibrated)
	require.NoError(t, pop.Add(obj))
	assert.Equal(t, 12.0, pop.TotalIntensity(vol))
	assert.Equal(t, 4.0, pop.TotalVolume())
}

func TestFilterOneZ(t *testing.T) {
	lv := newBoxLabels(4, 4, 3,
		[7]int{1, 0, 0, 0, 1, 1, 0},
		[7]int{2, 2, 2, 0, 3, 3, 2},
	)
	pop := FromLabelVolume(lv, models.Uncalibrated)
	assert.Equal(t, 1, pop.FilterOneZ())
	assert.Equal(t, 1, pop.Len())
	assert.Equal(t, 1, pop.At(0).ID)
}

func TestAddRejectsDuplicateLabel(t *testing.T) {
	pop := NewPopulation(isotropic(2))
	a, _ := NewObject(1, []Run{{X0: 0, X1: 0}}, models.Uncalibrated)
	b, _ := NewObject(1, []Run{{X0: 3, X1: 3}}, models.Uncalibrated)
	require.NoError(t, pop.Add(a))
	assert.Error(t, pop.Add(b))
	// Calibration is taken from the population
	assert.Equal(t, 8.0, a.Volume())
}

func TestDrawInto(t *testing.T) {
	lv := newBoxLabels(5, 5, 2,
		[7]int{4, 0, 0, 0, 1, 1, 1},
		[7]int{8, 3, 3, 1, 4, 4, 1},
	)
	pop := FromLabelVolume(lv, models.Uncalibrated)
	pop.Relabel()

	dst := models.NewLabelVolume(5, 5, 2)
	pop.DrawInto(dst)
	for _, obj := range pop.Objects() {
		obj.Each(func(x, y, z int) {
			if got := dst.At(x, y, z); got != int32(obj.Label) {
				t.Errorf("Expected label %d at (%d,%d,%d), got %d", obj.Label, x, y, z, got)
			}
		})
	}

	painted := models.NewLabelVolume(5, 5, 2)
	pop.DrawValueInto(painted, 255)
	count := 0
	for _, v := range painted.Data {
		if v == 255 {
			count++
		}
	}
	assert.Equal(t, 8+4, count)
}

func TestOverlap(t *testing.T) {
	a, _ := NewObject(1, []Run{{X0: 0, X1: 9}}, models.Uncalibrated)
	b, _ := NewObject(2, []Run{{X0: 5, X1: 14}}, models.Uncalibrated)
	c, _ := NewObject(3, []Run{{X0: 2, X1: 3}, {X0: 6, X1: 20}, {Y: 1, X0: 0, X1: 9}}, models.Uncalibrated)
	d, _ := NewObject(4, []Run{{Z: 1, X0: 0, X1: 9}}, models.Uncalibrated)

	assert.Equal(t, 5, Overlap(a, b))
	assert.Equal(t, 5, Overlap(b, a))
	assert.Equal(t, 2+4, Overlap(a, c))
	assert.Equal(t, 0, Overlap(a, d))
	assert.Equal(t, a.Size(), Overlap(a, a))
}

func TestDilateNoOp(t *testing.T) {
	obj, _ := NewObject(5, []Run{{Z: 1, Y: 1, X0: 1, X1: 2}}, models.Uncalibrated)
	got := obj.Dilate(0, 0, 0, models.Dims{Width: 4, Height: 4, Depth: 4})
	assert.Same(t, obj, got)
	assert.Equal(t, 5, got.Label)
	assert.Equal(t, obj.Runs(), got.Runs())
}

func TestDilateSphere(t *testing.T) {
	obj, _ := NewObject(1, []Run{{Z: 5, Y: 5, X0: 5, X1: 5}}, models.Uncalibrated)
	obj.ID = 42
	dims := models.Dims{Width: 11, Height: 11, Depth: 11}

	d := obj.Dilate(1, 1, 1, dims)
	// A radius-1 ball is the 6-neighbourhood plus the centre
	assert.Equal(t, 7, d.Size())
	assert.Equal(t, 42, d.ID)
	assert.Equal(t, 1, obj.Size(), "source must not be mutated")

	d2 := obj.Dilate(2, 2, 0, dims)
	// A flat disc of radius 2: 1 + 4 + 4 + 4 = 13 voxels, single plane
	assert.Equal(t, 13, d2.Size())
	assert.Equal(t, 1, d2.Planes())
}

func TestDilateClipsToImage(t *testing.T) {
	dims := models.Dims{Width: 6, Height: 5, Depth: 3}
	// Object touching the x=0, y=0 and z=0 faces
	obj, _ := NewObject(1, []Run{{Z: 0, Y: 0, X0: 0, X1: 1}, {Z: 2, Y: 4, X0: 4, X1: 5}}, models.Uncalibrated)

	d := obj.Dilate(3, 3, 2, dims)
	require.NotNil(t, d)
	d.Each(func(x, y, z int) {
		if !dims.Contains(x, y, z) {
			t.Errorf("Dilated voxel (%d,%d,%d) is outside %v", x, y, z, dims)
		}
	})
	assert.True(t, d.BoundingBox().Inside(dims))
	assert.True(t, d.Contains(0, 0, 0))
	assert.True(t, d.Contains(5, 4, 2))
}
