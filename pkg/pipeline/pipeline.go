// Package pipeline runs the per-image analyses and writes their results.
//
// Every image goes through a fixed sequence of stages: segmentation of each
// channel, size and intensity filtering, colocalization, intensity
// measurement, then result rows. Stages of one image never run concurrently;
// Batch may process several images at once.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
	"github.com/orion-cirb/Coloc-3DCells/pkg/config"
	"github.com/orion-cirb/Coloc-3DCells/pkg/metrics"
	"github.com/orion-cirb/Coloc-3DCells/pkg/objects"
	"github.com/orion-cirb/Coloc-3DCells/pkg/results"
	"github.com/orion-cirb/Coloc-3DCells/pkg/segment"
	"github.com/orion-cirb/Coloc-3DCells/pkg/visualization"
)

// Source provides the channels and calibration of images.
type Source interface {
	Load(ctx context.Context, image, channel string) (*models.Volume, error)
	Calibration(image string) (models.Calibration, error)
}

// Result holds the rows produced for one image, by table name.
type Result struct {
	Image string
	Rows  map[string][]results.Row
}

// Analysis processes one image at a time.
type Analysis interface {
	// Tables lists the result tables in the order they are written
	Tables() []results.Table

	// Process runs every stage on image
	Process(ctx context.Context, image string) (*Result, error)
}

// Params holds everything an analysis needs besides its configuration.
type Params struct {
	// Config holds the analysis parameters; it must have passed Validate
	Config *config.Config

	// Source reads image channels
	Source Source

	// Segmenter labels nuclei, cells and genes
	Segmenter segment.Segmenter

	// Logger receives stage progress; nil discards it
	Logger logrus.FieldLogger

	// Metrics is optional
	Metrics *metrics.Metrics

	// ObjectsDir receives one <image>_Objects overlay per image, "" disables them
	ObjectsDir string
}

// New returns the analysis selected by the configured mode.
func New(params *Params) (Analysis, error) {
	if params.Logger == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		params.Logger = logger
	}
	b := base{params: params, cfg: params.Config}
	switch params.Config.Mode {
	case config.ModeCells3D:
		return &Cells3D{base: b}, nil
	case config.ModeGenes2D:
		return &Genes2D{base: b}, nil
	}
	return nil, fmt.Errorf("unknown mode %q", params.Config.Mode)
}

// base holds the stage helpers shared by the analyses.
type base struct {
	params *Params
	cfg    *config.Config
}

// calibration returns the calibration every population of image uses.
func (b *base) calibration(image string) (models.Calibration, error) {
	if b.cfg.Calibration.Override {
		return b.cfg.FallbackCalibration(), nil
	}
	return b.params.Source.Calibration(image)
}

func (b *base) logger(image, stage string) *logrus.Entry {
	return b.params.Logger.WithFields(logrus.Fields{
		"image": image,
		"stage": stage,
	})
}

// load reads a channel and stamps it with cal.
func (b *base) load(ctx context.Context, image, channel string, cal models.Calibration) (*models.Volume, error) {
	start := time.Now()
	defer b.params.Metrics.ObserveStage("load", start)

	vol, err := b.params.Source.Load(ctx, image, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to load channel %s: %w", channel, err)
	}
	vol.Calibration = cal
	return vol, nil
}

// detect loads a channel and segments it into a population.
func (b *base) detect(ctx context.Context, image, channel string, cal models.Calibration, m segment.Model) (*models.Volume, *objects.Population, error) {
	vol, err := b.load(ctx, image, channel, cal)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	m.Image = image
	m.Channel = channel
	lv, err := segment.Run(ctx, b.params.Segmenter, vol, m, b.cfg.Processing.SegmentTimeout)
	b.params.Metrics.ObserveStage("segment", start)
	if err != nil {
		return nil, nil, err
	}

	pop := objects.FromLabelVolume(lv, cal)
	b.logger(image, "segment").WithField("channel", channel).Infof("%d objects found", pop.Len())
	return vol, pop, nil
}

// enabled reports whether an optional channel is configured.
func enabled(channel string) bool {
	return channel != "" && channel != config.NoChannel
}

// saveOverlay writes the overlay slices of image, and the labels of primary,
// when overlays are enabled.
func (b *base) saveOverlay(image string, overlay *visualization.Overlay, primary *objects.Population) error {
	if b.params.ObjectsDir == "" {
		return nil
	}
	start := time.Now()
	defer b.params.Metrics.ObserveStage("overlay", start)

	dir := filepath.Join(b.params.ObjectsDir, image+"_Objects")
	if err := overlay.SaveSliceSequence("z", dir); err != nil {
		return fmt.Errorf("failed to save object overlay: %w", err)
	}
	if err := visualization.SaveLabels(primary, overlay.Dims(), dir); err != nil {
		return fmt.Errorf("failed to save object labels: %w", err)
	}
	return nil
}

func stardistModel(s config.Stardist) segment.Model {
	return segment.Model{
		Engine:           "stardist",
		Name:             s.Model,
		ProbThreshold:    s.ProbThreshold,
		OverlapThreshold: s.OverlapThreshold,
	}
}

func cellposeModel(c config.Cellpose) segment.Model {
	return segment.Model{
		Engine:          "cellpose",
		Name:            c.Model,
		Diameter:        c.Diameter,
		FlowThreshold:   c.FlowThreshold,
		StitchThreshold: c.StitchThreshold,
	}
}
