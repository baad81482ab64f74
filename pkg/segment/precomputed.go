package segment

import (
	"context"
	"path/filepath"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
	"github.com/orion-cirb/Coloc-3DCells/pkg/imageio"
)

// Precomputed reads label stacks that an engine already produced, from
// <Root>/<image>/<channel><Suffix>/.
type Precomputed struct {
	Root   string
	Suffix string
}

func (p Precomputed) Segment(ctx context.Context, _ *models.Volume, m Model) (*models.LabelVolume, error) {
	return imageio.ReadLabels(ctx, filepath.Join(p.Root, m.Image, m.Channel+p.Suffix))
}
