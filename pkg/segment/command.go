package segment

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
	"github.com/orion-cirb/Coloc-3DCells/pkg/imageio"
)

// Command runs an external program for every call. The volume is written as
// TIFF planes to a temporary input directory and the program must leave one
// label plane per input plane in the output directory.
//
// Args may use the placeholders {input}, {output}, {engine}, {model},
// {diameter}, {prob}, {overlap}, {flow} and {stitch}.
type Command struct {
	Path   string
	Args   []string
	Logger logrus.FieldLogger
}

func (c Command) Segment(ctx context.Context, vol *models.Volume, m Model) (*models.LabelVolume, error) {
	work, err := os.MkdirTemp("", "coloc3dcells-segment-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(work)

	in := filepath.Join(work, "input")
	out := filepath.Join(work, "output")
	if err := imageio.WriteSlices(in, "z", imageio.VolumePlanes(vol)); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(out, 0755); err != nil {
		return nil, err
	}

	args := c.expand(in, out, m)
	if c.Logger != nil {
		c.Logger.WithFields(logrus.Fields{
			"image":   m.Image,
			"channel": m.Channel,
			"engine":  m.Engine,
		}).Debugf("running %s %s", c.Path, strings.Join(args, " "))
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w: %s", c.Path, err, lastLine(stderr.String()))
	}

	return imageio.ReadLabels(ctx, out)
}

func (c Command) expand(in, out string, m Model) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	r := strings.NewReplacer(
		"{input}", in,
		"{output}", out,
		"{engine}", m.Engine,
		"{model}", m.Name,
		"{diameter}", f(m.Diameter),
		"{prob}", f(m.ProbThreshold),
		"{overlap}", f(m.OverlapThreshold),
		"{flow}", f(m.FlowThreshold),
		"{stitch}", f(m.StitchThreshold),
	)
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = r.Replace(a)
	}
	return args
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
