package segment

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
	"github.com/orion-cirb/Coloc-3DCells/pkg/imageio"
)

func testVolume() *models.Volume {
	vol := models.NewVolume(4, 3, 2, models.Uncalibrated)
	for i := range vol.Data {
		vol.Data[i] = float64(i % 3)
	}
	return vol
}

func TestRunValidatesShape(t *testing.T) {
	vol := testVolume()
	wrong := Func(func(context.Context, *models.Volume, Model) (*models.LabelVolume, error) {
		return models.NewLabelVolume(4, 3, 1), nil
	})
	_, err := Run(context.Background(), wrong, vol, Model{Engine: "stardist"}, 0)
	assert.ErrorIs(t, err, models.ErrSegmentationUnavailable)

	right := Func(func(_ context.Context, v *models.Volume, _ Model) (*models.LabelVolume, error) {
		return models.NewLabelVolume(v.Width, v.Height, v.Depth), nil
	})
	lv, err := Run(context.Background(), right, vol, Model{}, 0)
	require.NoError(t, err)
	assert.Equal(t, vol.Dims(), lv.Dims())
}

func TestCheck(t *testing.T) {
	vol := testVolume()
	assert.ErrorIs(t, Check(vol, nil), models.ErrSegmentationUnavailable)

	lv := models.NewLabelVolume(4, 3, 2)
	require.NoError(t, Check(vol, lv))
	lv.Data[5] = -2
	assert.ErrorIs(t, Check(vol, lv), models.ErrSegmentationUnavailable)

	lv = models.NewLabelVolume(4, 3, 2)
	lv.Data = lv.Data[:10]
	assert.ErrorIs(t, Check(vol, lv), models.ErrSegmentationUnavailable)
}

func TestRunWrapsEngineError(t *testing.T) {
	boom := errors.New("gpu out of memory")
	failing := Func(func(context.Context, *models.Volume, Model) (*models.LabelVolume, error) {
		return nil, boom
	})
	_, err := Run(context.Background(), failing, testVolume(), Model{Engine: "cellpose"}, 0)
	assert.ErrorIs(t, err, models.ErrSegmentationUnavailable)
	assert.ErrorIs(t, err, boom)
}

func TestRunTimeout(t *testing.T) {
	slow := Func(func(ctx context.Context, _ *models.Volume, _ Model) (*models.LabelVolume, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := Run(context.Background(), slow, testVolume(), Model{}, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, models.ErrSegmentationUnavailable)
}

func TestPrecomputed(t *testing.T) {
	root := t.TempDir()
	labels := models.NewLabelVolume(4, 3, 2)
	labels.Set(1, 1, 0, 3)
	labels.Set(2, 2, 1, 12)
	dir := filepath.Join(root, "mouse1", "dapi_labels")
	planes, err := imageio.LabelPlanes(labels)
	require.NoError(t, err)
	require.NoError(t, imageio.WriteSlices(dir, "z", planes))

	p := Precomputed{Root: root, Suffix: "_labels"}
	lv, err := Run(context.Background(), p, testVolume(), Model{Image: "mouse1", Channel: "dapi"}, 0)
	require.NoError(t, err)
	assert.Equal(t, labels.Data, lv.Data)

	_, err = Run(context.Background(), p, testVolume(), Model{Image: "mouse2", Channel: "dapi"}, 0)
	assert.ErrorIs(t, err, models.ErrSegmentationUnavailable)
}

func TestCommand(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	// the "engine" copies its input, so labels equal the intensities
	c := Command{
		Path:   sh,
		Args:   []string{"-c", "cp {input}/* {output}/"},
		Logger: logger,
	}
	vol := testVolume()
	lv, err := Run(context.Background(), c, vol, Model{Engine: "stardist", Image: "m", Channel: "dapi"}, 0)
	require.NoError(t, err)
	for i, v := range vol.Data {
		if lv.Data[i] != int32(v) {
			t.Fatalf("voxel %d: expected %v, got %d", i, v, lv.Data[i])
		}
	}
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "dapi", hook.LastEntry().Data["channel"])

	failing := Command{Path: sh, Args: []string{"-c", "echo no model >&2; exit 3"}}
	_, err = Run(context.Background(), failing, vol, Model{}, 0)
	assert.ErrorIs(t, err, models.ErrSegmentationUnavailable)
	assert.Contains(t, err.Error(), "no model")
}

func TestCommandExpand(t *testing.T) {
	c := Command{Args: []string{"--dir={input}", "{output}", "--model", "{model}", "--d", "{diameter}", "--flow={flow}"}}
	args := c.expand("/in", "/out", Model{Name: "cyto2", Diameter: 30, FlowThreshold: 0.4})
	assert.Equal(t, []string{"--dir=/in", "/out", "--model", "cyto2", "--d", "30", "--flow=0.4"}, args)
}
