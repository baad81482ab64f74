package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/orion-cirb/Coloc-3DCells/pkg/metrics"
	"github.com/orion-cirb/Coloc-3DCells/pkg/results"
)

// Batch runs an analysis over many images and writes their rows to a sink.
type Batch struct {
	Analysis Analysis
	Sink     results.Sink

	// Workers bounds the number of images processed at once, 0 means NumCPU
	Workers int

	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Summary counts the images of a batch run.
type Summary struct {
	Processed int
	Failed    int
}

type outcome struct {
	result *Result
	err    error
}

// Run processes images and writes their rows in the order images are given,
// whatever order they finish in. An image that fails is logged and skipped.
// Run stops on the first sink error or when ctx is done. The sink is not
// closed.
func (b *Batch) Run(ctx context.Context, images []string) (Summary, error) {
	var summary Summary
	logger := b.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	tables := b.Analysis.Tables()
	for _, t := range tables {
		if err := b.Sink.Begin(t); err != nil {
			return summary, fmt.Errorf("failed to open table %s: %w", t.Name, err)
		}
	}

	workers := b.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	slots := make([]chan outcome, len(images))
	for i := range slots {
		slots[i] = make(chan outcome, 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	// One slot for the writer, the rest for images
	g.SetLimit(workers + 1)

	g.Go(func() error {
		for i, slot := range slots {
			var o outcome
			select {
			case o = <-slot:
			case <-gctx.Done():
				return gctx.Err()
			}

			log := logger.WithField("image", images[i])
			b.Metrics.ImageDone(o.err)
			if o.err != nil {
				log.WithError(o.err).Error("Image skipped")
				summary.Failed++
				continue
			}
			for _, t := range tables {
				if err := results.WriteAll(b.Sink, t, o.result.Rows[t.Name]); err != nil {
					return fmt.Errorf("failed to write %s rows of %s: %w", t.Name, images[i], err)
				}
			}
			summary.Processed++
			log.Info("Results written")
		}
		return nil
	})

	for i, image := range images {
		i, image := i, image
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			start := time.Now()
			logger.WithField("image", image).Info("Processing image")
			res, err := b.Analysis.Process(gctx, image)
			b.Metrics.ObserveStage("image", start)
			slots[i] <- outcome{result: res, err: err}
			return nil
		})
	}

	err := g.Wait()
	return summary, err
}
