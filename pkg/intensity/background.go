// Package intensity estimates channel background and measures
// background-corrected intensities around objects.
package intensity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
)

// Policy picks how a background level is derived from the min projection.
type Policy int

const (
	// PolicyMean uses the mean of the min projection.
	PolicyMean Policy = iota

	// PolicyMeanStdDev uses mean + standard deviation of the min projection.
	// It is the conservative choice when the corrected value must not produce
	// false positives.
	PolicyMeanStdDev
)

func (p Policy) String() string {
	switch p {
	case PolicyMean:
		return "mean"
	case PolicyMeanStdDev:
		return "meanStdDev"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "mean", "median":
		return PolicyMean, nil
	case "meanStdDev", "mean+std":
		return PolicyMeanStdDev, nil
	}
	return PolicyMean, fmt.Errorf("unknown background policy %q", name)
}

// Background holds the statistics of a min projection.
type Background struct {
	Mean   float64
	StdDev float64
}

// Level returns the background level to subtract under the given policy.
func (b Background) Level(p Policy) float64 {
	if p == PolicyMeanStdDev {
		return b.Mean + b.StdDev
	}
	return b.Mean
}

// MinProjection returns, for every (x, y), the minimum over all z planes.
func MinProjection(vol *models.Volume) *models.Volume {
	proj := models.NewVolume(vol.Width, vol.Height, 1, vol.Calibration)
	size := vol.Width * vol.Height
	if vol.Depth == 0 {
		return proj
	}
	copy(proj.Data, vol.Data[:size])
	for z := 1; z < vol.Depth; z++ {
		plane := vol.Data[z*size : (z+1)*size]
		for i, v := range plane {
			proj.Data[i] = math.Min(proj.Data[i], v)
		}
	}
	return proj
}

// Estimate returns the mean and sample standard deviation of a plane.
func Estimate(plane *models.Volume) Background {
	if len(plane.Data) == 0 {
		return Background{}
	}
	if len(plane.Data) == 1 {
		return Background{Mean: plane.Data[0]}
	}
	mean, std := stat.MeanStdDev(plane.Data, nil)
	return Background{Mean: mean, StdDev: std}
}

// EstimateVolume models the background of a channel as the statistics of its
// min projection: pixels that stay dim on every plane carry the least signal.
func EstimateVolume(vol *models.Volume) Background {
	return Estimate(MinProjection(vol))
}
