// Package config provides configuration loading and management for coloc3dcells.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
	"github.com/orion-cirb/Coloc-3DCells/pkg/intensity"
)

// Analysis modes
const (
	// ModeCells3D segments nuclei plus GFP and CC1 cells and measures NG2 around nuclei
	ModeCells3D = "cells3d"

	// ModeGenes2D segments DAPI nuclei plus three gene channels and colocalizes them
	ModeGenes2D = "genes2d"
)

// Segmenter kinds
const (
	// SegmenterPrecomputed reads label stacks produced beforehand
	SegmenterPrecomputed = "precomputed"

	// SegmenterCommand runs an external program per channel
	SegmenterCommand = "command"
)

// NoChannel disables an optional channel.
const NoChannel = "None"

// Stardist holds the nucleus detector parameters.
type Stardist struct {
	// Model is the stardist model file
	Model string `yaml:"model"`

	// ProbThreshold is the minimum object probability
	ProbThreshold float64 `yaml:"probThreshold"`

	// OverlapThreshold is the non-maximum suppression overlap
	OverlapThreshold float64 `yaml:"overlapThreshold"`
}

// Cellpose holds the cell segmenter parameters.
type Cellpose struct {
	// Model is the cellpose model name
	Model string `yaml:"model"`

	// Diameter is the expected cell diameter in pixels
	Diameter float64 `yaml:"diameter"`

	// FlowThreshold is the maximum flow error of a mask
	FlowThreshold float64 `yaml:"flowThreshold"`

	// StitchThreshold joins 2D masks across planes into 3D cells
	StitchThreshold float64 `yaml:"stitchThreshold"`
}

// CellChannel holds the filters of one cell population.
type CellChannel struct {
	// IntensityThreshold removes cells whose maximum intensity is not above it
	IntensityThreshold float64 `yaml:"intensityThreshold"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Mode selects the analysis, cells3d or genes2d
	Mode string `yaml:"mode"`

	// Processing parameters
	Processing struct {
		// Workers is how many images are processed at the same time
		Workers int `yaml:"workers"`

		// SegmentTimeout bounds every segmentation call, 0 disables it
		SegmentTimeout time.Duration `yaml:"segmentTimeout"`
	} `yaml:"processing"`

	// Calibration is used for images without a calibration sidecar
	Calibration struct {
		// PixelSize is the XY voxel edge
		PixelSize float64 `yaml:"pixelSize"`

		// PixelDepth is the Z voxel edge
		PixelDepth float64 `yaml:"pixelDepth"`

		Unit string `yaml:"unit"`

		// Override ignores calibration sidecars
		Override bool `yaml:"override"`
	} `yaml:"calibration"`

	// Channels maps analysis roles to channel directory names
	Channels struct {
		Nucleus string   `yaml:"nucleus"`
		GFP     string   `yaml:"gfp"`
		CC1     string   `yaml:"cc1"`
		NG2     string   `yaml:"ng2"`
		Genes   []string `yaml:"genes"`
	} `yaml:"channels"`

	// Nucleus parameters
	Nucleus struct {
		// MinVolume and MaxVolume bound nucleus volumes in calibrated units
		MinVolume float64 `yaml:"minVolume"`
		MaxVolume float64 `yaml:"maxVolume"`

		// Dilation is the radius of the ring measured around each nucleus
		Dilation float64 `yaml:"dilation"`

		// DilationZ is the Z radius of the ring
		DilationZ float64 `yaml:"dilationZ"`

		// RemoveSinglePlane drops nuclei that live on one z plane
		RemoveSinglePlane bool `yaml:"removeSinglePlane"`

		Stardist Stardist `yaml:"stardist"`
	} `yaml:"nucleus"`

	// Cells parameters
	Cells struct {
		// MinVolume and MaxVolume bound cell volumes in calibrated units
		MinVolume float64 `yaml:"minVolume"`
		MaxVolume float64 `yaml:"maxVolume"`

		GFP CellChannel `yaml:"gfp"`
		CC1 CellChannel `yaml:"cc1"`

		Cellpose Cellpose `yaml:"cellpose"`
	} `yaml:"cells"`

	// Genes parameters
	Genes struct {
		// MinArea and MaxArea bound nucleus and gene areas
		MinArea float64 `yaml:"minArea"`
		MaxArea float64 `yaml:"maxArea"`

		// IntensityThresholds holds one threshold per gene channel
		IntensityThresholds []float64 `yaml:"intensityThresholds"`

		Stardist Stardist `yaml:"stardist"`
	} `yaml:"genes"`

	// Background parameters
	Background struct {
		// Policy is "mean" or "meanStdDev"
		Policy string `yaml:"policy"`
	} `yaml:"background"`

	// Coloc parameters
	Coloc struct {
		// MinFraction is the share of an object that must overlap, 0 accepts any overlap
		MinFraction float64 `yaml:"minFraction"`
	} `yaml:"coloc"`

	// Segmenter parameters
	Segmenter struct {
		// Kind is "precomputed" or "command"
		Kind string `yaml:"kind"`

		// LabelSuffix names precomputed label directories, <channel><suffix>
		LabelSuffix string `yaml:"labelSuffix"`

		// Command and Args run the external segmenter
		Command string   `yaml:"command"`
		Args    []string `yaml:"args"`
	} `yaml:"segmenter"`

	// Output parameters
	Output struct {
		// Dir receives the result tables, "" means <input>/Results
		Dir string `yaml:"dir"`

		// TSV writes tab-separated tables
		TSV bool `yaml:"tsv"`

		// SQLite is a database path for the result tables, "" disables it
		SQLite string `yaml:"sqlite"`

		// SaveObjects writes object overlays per image
		SaveObjects bool `yaml:"saveObjects"`

		// MetricsAddr serves Prometheus metrics, "" disables it
		MetricsAddr string `yaml:"metricsAddr"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Mode = ModeCells3D

	cfg.Processing.Workers = runtime.NumCPU()
	cfg.Processing.SegmentTimeout = 10 * time.Minute

	cfg.Calibration.PixelSize = 0.258
	cfg.Calibration.PixelDepth = 1
	cfg.Calibration.Unit = "µm"

	cfg.Channels.Nucleus = "DAPI"
	cfg.Channels.GFP = "GFP"
	cfg.Channels.CC1 = "CC1"
	cfg.Channels.NG2 = "NG2"
	cfg.Channels.Genes = []string{"Gene1", "Gene2", "Gene3"}

	cfg.Nucleus.MinVolume = 10
	cfg.Nucleus.MaxVolume = 1000
	cfg.Nucleus.Dilation = 1
	cfg.Nucleus.DilationZ = 1
	cfg.Nucleus.Stardist = Stardist{Model: "StandardFluo.zip", ProbThreshold: 0.40, OverlapThreshold: 0.25}

	cfg.Cells.MinVolume = 10
	cfg.Cells.MaxVolume = 5000
	cfg.Cells.GFP.IntensityThreshold = 100
	cfg.Cells.CC1.IntensityThreshold = 100
	cfg.Cells.Cellpose = Cellpose{Model: "cyto2", Diameter: 30, FlowThreshold: 0.4, StitchThreshold: 0.25}

	cfg.Genes.MinArea = 30
	cfg.Genes.MaxArea = 300
	cfg.Genes.IntensityThresholds = []float64{500, 500, 500}
	cfg.Genes.Stardist = Stardist{Model: "StandardFluo.zip", ProbThreshold: 0.80, OverlapThreshold: 0.25}

	cfg.Background.Policy = "mean"
	cfg.Coloc.MinFraction = 0

	cfg.Segmenter.Kind = SegmenterPrecomputed
	cfg.Segmenter.LabelSuffix = "_labels"

	cfg.Output.TSV = true
	cfg.Output.SaveObjects = true
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks the configuration before any image is processed.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeCells3D, ModeGenes2D:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.Processing.Workers < 1 {
		return fmt.Errorf("processing.workers %d: %w", c.Processing.Workers, models.ErrInvalidRange)
	}
	if c.Processing.SegmentTimeout < 0 {
		return fmt.Errorf("processing.segmentTimeout %v: %w", c.Processing.SegmentTimeout, models.ErrInvalidRange)
	}
	cal := models.Calibration{X: c.Calibration.PixelSize, Y: c.Calibration.PixelSize, Z: c.Calibration.PixelDepth}
	if !cal.Valid() {
		return fmt.Errorf("calibration %gx%g: %w", c.Calibration.PixelSize, c.Calibration.PixelDepth, models.ErrInvalidRange)
	}

	ranges := []struct {
		name     string
		min, max float64
	}{
		{"nucleus volume", c.Nucleus.MinVolume, c.Nucleus.MaxVolume},
		{"cells volume", c.Cells.MinVolume, c.Cells.MaxVolume},
		{"genes area", c.Genes.MinArea, c.Genes.MaxArea},
	}
	for _, r := range ranges {
		if r.min < 0 || r.min > r.max {
			return fmt.Errorf("%s [%g, %g]: %w", r.name, r.min, r.max, models.ErrInvalidRange)
		}
	}
	if c.Nucleus.Dilation < 0 || c.Nucleus.DilationZ < 0 {
		return fmt.Errorf("nucleus dilation (%g, %g): %w", c.Nucleus.Dilation, c.Nucleus.DilationZ, models.ErrInvalidRange)
	}
	if c.Coloc.MinFraction < 0 || c.Coloc.MinFraction > 1 {
		return fmt.Errorf("coloc.minFraction %g: %w", c.Coloc.MinFraction, models.ErrInvalidRange)
	}

	if _, err := intensity.ParsePolicy(c.Background.Policy); err != nil {
		return err
	}

	switch c.Segmenter.Kind {
	case SegmenterPrecomputed:
	case SegmenterCommand:
		if c.Segmenter.Command == "" {
			return fmt.Errorf("segmenter.command is required for the %s segmenter", SegmenterCommand)
		}
	default:
		return fmt.Errorf("unknown segmenter %q", c.Segmenter.Kind)
	}

	if c.Channels.Nucleus == "" || c.Channels.Nucleus == NoChannel {
		return fmt.Errorf("channels.nucleus is required")
	}
	if c.Mode == ModeGenes2D {
		if len(c.Channels.Genes) != 3 {
			return fmt.Errorf("genes2d needs 3 gene channels, got %d", len(c.Channels.Genes))
		}
		if len(c.Genes.IntensityThresholds) != len(c.Channels.Genes) {
			return fmt.Errorf("genes2d needs one intensity threshold per gene channel, got %d", len(c.Genes.IntensityThresholds))
		}
	}
	if !c.Output.TSV && c.Output.SQLite == "" {
		return fmt.Errorf("no result output enabled")
	}
	return nil
}

// FallbackCalibration is the calibration of images without a sidecar.
func (c *Config) FallbackCalibration() models.Calibration {
	return models.Calibration{
		X:    c.Calibration.PixelSize,
		Y:    c.Calibration.PixelSize,
		Z:    c.Calibration.PixelDepth,
		Unit: c.Calibration.Unit,
	}
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
