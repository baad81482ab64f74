// Package segment turns intensity volumes into label volumes by calling a
// segmentation engine. The engines themselves live outside this program.
package segment

import (
	"context"
	"fmt"
	"time"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
)

// Model holds the engine parameters of one segmentation call.
type Model struct {
	// Engine is the segmentation engine, "stardist" or "cellpose"
	Engine string

	// Name is the engine model, e.g. "cyto2" or "StandardFluo.zip"
	Name string

	// Image and Channel identify the volume being segmented
	Image   string
	Channel string

	// Diameter is the expected object diameter in pixels (cellpose)
	Diameter float64

	// ProbThreshold and OverlapThreshold are the stardist NMS thresholds
	ProbThreshold    float64
	OverlapThreshold float64

	// FlowThreshold and StitchThreshold are the cellpose thresholds
	FlowThreshold   float64
	StitchThreshold float64
}

// Segmenter labels the objects of a volume: 0 is background, every positive
// value is one instance.
type Segmenter interface {
	Segment(ctx context.Context, vol *models.Volume, m Model) (*models.LabelVolume, error)
}

// Func adapts a function to the Segmenter interface.
type Func func(ctx context.Context, vol *models.Volume, m Model) (*models.LabelVolume, error)

func (f Func) Segment(ctx context.Context, vol *models.Volume, m Model) (*models.LabelVolume, error) {
	return f(ctx, vol, m)
}

// Check verifies that lv is a valid segmentation of vol.
func Check(vol *models.Volume, lv *models.LabelVolume) error {
	if lv == nil {
		return fmt.Errorf("no label volume returned: %w", models.ErrSegmentationUnavailable)
	}
	if lv.Dims() != vol.Dims() {
		return fmt.Errorf("label volume is %s, image is %s: %w",
			lv.Dims(), vol.Dims(), models.ErrSegmentationUnavailable)
	}
	if len(lv.Data) != lv.Dims().Len() {
		return fmt.Errorf("label volume holds %d voxels, expected %d: %w",
			len(lv.Data), lv.Dims().Len(), models.ErrSegmentationUnavailable)
	}
	for _, l := range lv.Data {
		if l < 0 {
			return fmt.Errorf("negative label %d: %w", l, models.ErrSegmentationUnavailable)
		}
	}
	return nil
}

// Run calls s under timeout (0 means none) and validates its output. Every
// failure wraps models.ErrSegmentationUnavailable.
func Run(ctx context.Context, s Segmenter, vol *models.Volume, m Model, timeout time.Duration) (*models.LabelVolume, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	lv, err := s.Segment(ctx, vol, m)
	if err != nil {
		return nil, fmt.Errorf("%s %s on %s/%s: %w: %w",
			m.Engine, m.Name, m.Image, m.Channel, models.ErrSegmentationUnavailable, err)
	}
	if err := Check(vol, lv); err != nil {
		return nil, fmt.Errorf("%s %s on %s/%s: %w", m.Engine, m.Name, m.Image, m.Channel, err)
	}
	return lv, nil
}
