package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
	"github.com/orion-cirb/Coloc-3DCells/pkg/coloc"
	"github.com/orion-cirb/Coloc-3DCells/pkg/objects"
	"github.com/orion-cirb/Coloc-3DCells/pkg/results"
	"github.com/orion-cirb/Coloc-3DCells/pkg/visualization"
)

// Genes2D counts gene spots of three channels and their co-occurrence inside
// DAPI nuclei.
type Genes2D struct {
	base
}

func (g *Genes2D) Tables() []results.Table {
	return []results.Table{results.GeneCountsTable, results.GeneAreasTable}
}

// Process runs every stage on image.
func (g *Genes2D) Process(ctx context.Context, image string) (*Result, error) {
	cfg := g.cfg
	cal, err := g.calibration(image)
	if err != nil {
		return nil, err
	}

	dapiVol, dapi, err := g.detect(ctx, image, cfg.Channels.Nucleus, cal, stardistModel(cfg.Genes.Stardist))
	if err != nil {
		return nil, err
	}
	if _, err := dapi.FilterBySize(cfg.Genes.MinArea, cfg.Genes.MaxArea); err != nil {
		return nil, err
	}
	g.logger(image, "nucleus").Infof("%d nuclei after size filter", dapi.Len())
	g.params.Metrics.AddObjects("dapi", dapi.Len())

	genes := make([]*objects.Population, len(cfg.Channels.Genes))
	for i, channel := range cfg.Channels.Genes {
		genes[i], err = g.gene(ctx, image, channel, cfg.Genes.IntensityThresholds[i], cal)
		if err != nil {
			return nil, err
		}
	}

	start := time.Now()
	minFraction := cfg.Coloc.MinFraction
	sets := results.GeneSets{
		Dapi:  dapi,
		Gene1: genes[0],
		Gene2: genes[1],
		Gene3: genes[2],
	}
	sets.Gene1Dapi = coloc.Colocalize(sets.Gene1, dapi, minFraction)
	sets.Gene2Dapi = coloc.Colocalize(sets.Gene2, dapi, minFraction)
	sets.Gene3Dapi = coloc.Colocalize(sets.Gene3, dapi, minFraction)
	sets.Gene1Gene2 = coloc.Colocalize(sets.Gene1Dapi, sets.Gene2Dapi, minFraction)
	sets.Gene1Gene3 = coloc.Colocalize(sets.Gene1Dapi, sets.Gene3Dapi, minFraction)
	sets.Gene2Gene3 = coloc.Colocalize(sets.Gene2Dapi, sets.Gene3Dapi, minFraction)
	sets.Gene1Gene2Gene3 = coloc.ColocalizeTriple(sets.Gene1Dapi, sets.Gene2Dapi, sets.Gene3Dapi, minFraction)
	g.params.Metrics.ObserveStage("coloc", start)

	g.logger(image, "coloc").WithFields(logrus.Fields{
		"gene1": sets.Gene1Dapi.Len(),
		"gene2": sets.Gene2Dapi.Len(),
		"gene3": sets.Gene3Dapi.Len(),
	}).Infof("%d genes found in all three channels", sets.Gene1Gene2Gene3.Len())

	if g.params.ObjectsDir != "" {
		overlay := visualization.NewOverlay(dapiVol.Dims())
		overlay.Add(sets.Gene2, visualization.Gray)
		overlay.Add(dapi, visualization.Blue)
		overlay.Add(sets.Gene1, visualization.Green)
		overlay.Add(sets.Gene3, visualization.Red)
		if err := g.saveOverlay(image, overlay, dapi); err != nil {
			return nil, err
		}
	}

	return &Result{
		Image: image,
		Rows: map[string][]results.Row{
			results.GeneCountsTable.Name: {results.GeneCountRow(image, sets)},
			results.GeneAreasTable.Name:  results.GeneAreaRows(image, sets),
		},
	}, nil
}

// gene segments one gene channel and keeps the spots brighter than threshold.
func (g *Genes2D) gene(ctx context.Context, image, channel string, threshold float64, cal models.Calibration) (*objects.Population, error) {
	vol, pop, err := g.detect(ctx, image, channel, cal, stardistModel(g.cfg.Genes.Stardist))
	if err != nil {
		return nil, err
	}
	pop.FilterByIntensity(vol, threshold, objects.StatMax)
	g.logger(image, "genes").WithField("channel", channel).Infof("%d spots after intensity filter", pop.Len())
	g.params.Metrics.AddObjects(channel, pop.Len())
	return pop, nil
}
