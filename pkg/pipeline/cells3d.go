package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
	"github.com/orion-cirb/Coloc-3DCells/pkg/coloc"
	"github.com/orion-cirb/Coloc-3DCells/pkg/intensity"
	"github.com/orion-cirb/Coloc-3DCells/pkg/nucleus"
	"github.com/orion-cirb/Coloc-3DCells/pkg/objects"
	"github.com/orion-cirb/Coloc-3DCells/pkg/results"
	"github.com/orion-cirb/Coloc-3DCells/pkg/visualization"
)

// Cells3D finds the nuclei of an image, flags the ones lying in GFP and CC1
// cells and measures the NG2 signal around each of them.
//
// The stages are:
//  1. Segment nuclei and filter them by volume
//  2. Segment GFP and CC1 cells, filter them by volume and maximum intensity
//  3. Flag every nucleus touching a GFP or CC1 cell
//  4. Dilate nuclei and measure background-corrected NG2 in the dilated region
//  5. Save the object overlay and build one row per nucleus
type Cells3D struct {
	base
}

func (c *Cells3D) Tables() []results.Table {
	return []results.Table{results.NucleiTable}
}

// Process runs every stage on image.
func (c *Cells3D) Process(ctx context.Context, image string) (*Result, error) {
	cfg := c.cfg
	cal, err := c.calibration(image)
	if err != nil {
		return nil, err
	}

	// Step 1: nuclei
	nucVol, nuclei, err := c.detect(ctx, image, cfg.Channels.Nucleus, cal, stardistModel(cfg.Nucleus.Stardist))
	if err != nil {
		return nil, err
	}
	if _, err := nuclei.FilterBySize(cfg.Nucleus.MinVolume, cfg.Nucleus.MaxVolume); err != nil {
		return nil, err
	}
	if cfg.Nucleus.RemoveSinglePlane {
		nuclei.FilterOneZ()
	}
	c.logger(image, "nucleus").Infof("%d nuclei after size filter", nuclei.Len())
	c.params.Metrics.AddObjects("nucleus", nuclei.Len())
	records, err := nucleus.NewRecords(nuclei)
	if err != nil {
		return nil, err
	}

	// Step 2: cells
	gfp, err := c.cells(ctx, image, cfg.Channels.GFP, cfg.Cells.GFP.IntensityThreshold, cal)
	if err != nil {
		return nil, err
	}
	cc1, err := c.cells(ctx, image, cfg.Channels.CC1, cfg.Cells.CC1.IntensityThreshold, cal)
	if err != nil {
		return nil, err
	}

	// Step 3: colocalization
	start := time.Now()
	for _, pair := range []struct {
		cells *objects.Population
		role  nucleus.Role
	}{
		{gfp, nucleus.RoleGFP},
		{cc1, nucleus.RoleCC1},
	} {
		matched, err := coloc.ColocalizeAnnotated(nuclei, pair.cells, cfg.Coloc.MinFraction, records, pair.role)
		if err != nil {
			return nil, err
		}
		c.logger(image, "coloc").Infof("%d nuclei with %v found", matched.Len(), pair.role)
	}
	c.params.Metrics.ObserveStage("coloc", start)

	// Step 4: NG2 around nuclei
	dilated, err := c.measureNG2(ctx, image, nuclei, records, cal)
	if err != nil {
		return nil, err
	}

	// Step 5: overlay and rows
	if c.params.ObjectsDir != "" {
		overlay := visualization.NewOverlay(nucVol.Dims())
		overlay.Add(dilated, visualization.Gray)
		overlay.Add(nuclei, visualization.Blue)
		overlay.Add(gfp, visualization.Green)
		overlay.Add(cc1, visualization.Red)
		if err := c.saveOverlay(image, overlay, nuclei); err != nil {
			return nil, err
		}
	}

	rows, err := results.NucleusRows(image, nuclei, records)
	if err != nil {
		return nil, err
	}
	return &Result{
		Image: image,
		Rows:  map[string][]results.Row{results.NucleiTable.Name: rows},
	}, nil
}

// cells segments one cell channel and filters it. A disabled channel gives
// an empty population.
func (c *Cells3D) cells(ctx context.Context, image, channel string, threshold float64, cal models.Calibration) (*objects.Population, error) {
	if !enabled(channel) {
		return objects.NewPopulation(cal), nil
	}
	vol, pop, err := c.detect(ctx, image, channel, cal, cellposeModel(c.cfg.Cells.Cellpose))
	if err != nil {
		return nil, err
	}

	log := c.logger(image, "cells").WithField("channel", channel)
	if _, err := pop.FilterBySize(c.cfg.Cells.MinVolume, c.cfg.Cells.MaxVolume); err != nil {
		return nil, err
	}
	log.Infof("%d cells after size filter", pop.Len())
	pop.FilterByIntensity(vol, threshold, objects.StatMax)
	log.Infof("%d cells after intensity filter", pop.Len())
	c.params.Metrics.AddObjects(channel, pop.Len())
	return pop, nil
}

// measureNG2 stores the NG2 halo intensity of every nucleus in records and
// returns the dilated nuclei. A disabled NG2 channel leaves intensities at 0.
func (c *Cells3D) measureNG2(ctx context.Context, image string, nuclei *objects.Population, records *nucleus.Records, cal models.Calibration) (*objects.Population, error) {
	channel := c.cfg.Channels.NG2
	if !enabled(channel) {
		return objects.NewPopulation(cal), nil
	}
	vol, err := c.load(ctx, image, channel, cal)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer c.params.Metrics.ObserveStage("intensity", start)

	policy, err := intensity.ParsePolicy(c.cfg.Background.Policy)
	if err != nil {
		return nil, err
	}
	bg := intensity.EstimateVolume(vol)
	level := bg.Level(policy)
	c.logger(image, "intensity").Infof("NG2 background %s = %.3f (mean %.3f, std %.3f)", policy, level, bg.Mean, bg.StdDev)

	dilated, measures, err := intensity.MeasureHalo(nuclei, vol, c.cfg.Nucleus.Dilation, c.cfg.Nucleus.DilationZ, level)
	if err != nil {
		return nil, fmt.Errorf("NG2 measurement: %w", err)
	}
	for _, m := range measures {
		if err := records.SetIntensity(m.ID, nucleus.RoleNG2, m.Mean, m.Corrected); err != nil {
			return nil, err
		}
	}
	return dilated, nil
}
