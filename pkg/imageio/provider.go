package imageio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
)

// CalibrationFile is the per-image sidecar holding the voxel size.
const CalibrationFile = "calibration.yaml"

// calibrationFile is the on-disk form of models.Calibration.
type calibrationFile struct {
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
	Z    float64 `yaml:"z"`
	Unit string  `yaml:"unit"`
}

// Provider serves images from a directory tree.
type Provider struct {
	root     string
	fallback models.Calibration
}

// NewProvider serves the images under root. fallback is used for images
// without a calibration sidecar.
func NewProvider(root string, fallback models.Calibration) *Provider {
	return &Provider{root: root, fallback: fallback}
}

// Root returns the input directory.
func (p *Provider) Root() string {
	return p.root
}

// Images lists the image names under the root in lexical order. A directory
// is an image when it holds at least one channel subdirectory.
func (p *Provider) Images() ([]string, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, err
	}
	var images []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		channels, err := p.Channels(e.Name())
		if err != nil {
			return nil, err
		}
		if len(channels) > 0 {
			images = append(images, e.Name())
		}
	}
	sort.Strings(images)
	return images, nil
}

// Channels lists the channel directories of an image.
func (p *Provider) Channels(image string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(p.root, image))
	if err != nil {
		return nil, err
	}
	var channels []string
	for _, e := range entries {
		if e.IsDir() {
			channels = append(channels, e.Name())
		}
	}
	sort.Strings(channels)
	return channels, nil
}

// ChannelDir returns the directory holding the planes of a channel.
func (p *Provider) ChannelDir(image, channel string) string {
	return filepath.Join(p.root, image, channel)
}

// Load reads one channel of an image as an intensity volume.
func (p *Provider) Load(ctx context.Context, image, channel string) (*models.Volume, error) {
	cal, err := p.Calibration(image)
	if err != nil {
		return nil, err
	}
	vol, err := ReadVolume(ctx, p.ChannelDir(image, channel), cal)
	if err != nil {
		return nil, fmt.Errorf("image %s channel %s: %w", image, channel, err)
	}
	return vol, nil
}

// Calibration returns the voxel size of an image: its sidecar when present,
// the fallback otherwise. A sidecar without a Z size means one unit per plane.
func (p *Provider) Calibration(image string) (models.Calibration, error) {
	cal, err := ReadCalibration(filepath.Join(p.root, image, CalibrationFile))
	if errors.Is(err, os.ErrNotExist) {
		return p.fallback, nil
	}
	if err != nil {
		return models.Calibration{}, fmt.Errorf("image %s: %w", image, err)
	}
	if cal.Unit == "" {
		cal.Unit = p.fallback.Unit
	}
	return cal, nil
}

// ReadCalibration parses a calibration sidecar.
func ReadCalibration(path string) (models.Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Calibration{}, err
	}
	var f calibrationFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return models.Calibration{}, fmt.Errorf("failed to parse calibration: %w", err)
	}
	if f.Y == 0 {
		f.Y = f.X
	}
	if f.Z == 0 {
		f.Z = 1
	}
	cal := models.Calibration{X: f.X, Y: f.Y, Z: f.Z, Unit: f.Unit}
	if !cal.Valid() {
		return models.Calibration{}, fmt.Errorf("calibration %+v: %w", cal, models.ErrInvalidRange)
	}
	return cal, nil
}

// WriteCalibration saves cal as a sidecar at path.
func WriteCalibration(path string, cal models.Calibration) error {
	data, err := yaml.Marshal(calibrationFile{X: cal.X, Y: cal.Y, Z: cal.Z, Unit: cal.Unit})
	if err != nil {
		return fmt.Errorf("failed to marshal calibration: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
