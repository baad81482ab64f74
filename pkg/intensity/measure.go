package intensity

import (
	"fmt"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
	"github.com/orion-cirb/Coloc-3DCells/pkg/objects"
)

// Measurement is the mean intensity of a region and its background-corrected value.
type Measurement struct {
	// ID is the source object ID
	ID int

	Mean      float64
	Corrected float64
}

// Dilate grows obj by physical radii, converted to voxels with the object's
// calibration, and clips the result to dims. Zero radii return obj itself.
func Dilate(obj *objects.Object3D, radiusXY, radiusZ float64, dims models.Dims) (*objects.Object3D, error) {
	if radiusXY < 0 || radiusZ < 0 {
		return nil, fmt.Errorf("dilation radius (%g, %g): %w", radiusXY, radiusZ, models.ErrInvalidRange)
	}
	if radiusXY == 0 && radiusZ == 0 {
		return obj, nil
	}
	cal := obj.Calibration()
	rx, ry, rz := 0, 0, 0
	if cal.Valid() {
		rx = int(radiusXY / cal.X)
		ry = int(radiusXY / cal.Y)
		rz = int(radiusZ / cal.Z)
	}
	d := obj.Dilate(rx, ry, rz, dims)
	if d == nil {
		return nil, fmt.Errorf("object %d lies outside the image", obj.Label)
	}
	return d, nil
}

// MeasureCorrected samples the mean of vol under obj and subtracts bg.
func MeasureCorrected(obj *objects.Object3D, vol *models.Volume, bg float64) Measurement {
	mean := obj.Intensity(vol, objects.StatMean)
	return Measurement{ID: obj.ID, Mean: mean, Corrected: mean - bg}
}

// MeasureHalo dilates every object of pop and measures vol on the dilated
// object, so the sampled region includes the ring around each object. The
// dilated objects are returned as a new population (labels 1..n, IDs kept),
// together with one measurement per object in population order.
func MeasureHalo(pop *objects.Population, vol *models.Volume, radiusXY, radiusZ, bg float64) (*objects.Population, []Measurement, error) {
	dilated := objects.NewPopulation(pop.Calibration())
	measures := make([]Measurement, 0, pop.Len())
	dims := vol.Dims()
	for i, obj := range pop.Objects() {
		d, err := Dilate(obj, radiusXY, radiusZ, dims)
		if err != nil {
			return nil, nil, err
		}
		d = d.Clone()
		d.Label = i + 1
		if err := dilated.Add(d); err != nil {
			return nil, nil, err
		}
		measures = append(measures, MeasureCorrected(d, vol, bg))
	}
	return dilated, measures, nil
}
