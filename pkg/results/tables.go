// Package results turns measured populations into result rows and hands them
// to sinks.
package results

import (
	"fmt"

	"github.com/orion-cirb/Coloc-3DCells/pkg/nucleus"
	"github.com/orion-cirb/Coloc-3DCells/pkg/objects"
)

// Kind is the storage type of a column.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindReal
	KindBool
)

// Column describes one column of a result table.
type Column struct {
	// Name is the header written to text files
	Name string

	// Field is the column name used in SQL
	Field string

	Kind Kind
}

// Table is the schema of one result table.
type Table struct {
	// Name is the SQL table name
	Name string

	// File is the file name used by file based sinks
	File string

	Columns []Column
}

// Row holds one value per column: string, int, float64, bool or Missing.
type Row []any

type missing struct{}

// Missing marks a value that does not exist, such as a label absent from a population.
var Missing = missing{}

// NucleiTable has one row per nucleus of the cells3d analysis.
var NucleiTable = Table{
	Name: "nuclei",
	File: "CellsNumberResults.xls",
	Columns: []Column{
		{"ImageName", "image", KindText},
		{"#Nucleus", "nucleus", KindInt},
		{"Vol", "volume", KindReal},
		{"Is GFP", "is_gfp", KindBool},
		{"Is CC1", "is_cc1", KindBool},
		{"NG2 mean intensity", "ng2_mean", KindReal},
		{"NG2 mean corrected intensity", "ng2_mean_corrected", KindReal},
	},
}

// GeneCountsTable has one row per image of the genes2d analysis.
var GeneCountsTable = Table{
	Name: "gene_counts",
	File: "CellsNumberResults.xls",
	Columns: []Column{
		{"ImageName", "image", KindText},
		{"#Dapi", "dapi", KindInt},
		{"#Gene1", "gene1", KindInt},
		{"#Gene2", "gene2", KindInt},
		{"#Gene3", "gene3", KindInt},
		{"#Dapi/Gene1", "dapi_gene1", KindInt},
		{"#Dapi/Gene2", "dapi_gene2", KindInt},
		{"#Dapi/Gene3", "dapi_gene3", KindInt},
		{"#Gene1/Gene2", "gene1_gene2", KindInt},
		{"#Gene1/Gene3", "gene1_gene3", KindInt},
		{"#Gene2/Gene3", "gene2_gene3", KindInt},
		{"#Gene1/Gene2/Gene3", "gene1_gene2_gene3", KindInt},
	},
}

// GeneAreasTable has one row per DAPI nucleus of the genes2d analysis.
var GeneAreasTable = Table{
	Name: "gene_areas",
	File: "CellsAreaResults.xls",
	Columns: []Column{
		{"ImageName", "image", KindText},
		{"Dapi area", "dapi", KindReal},
		{"Gene1 area", "gene1", KindReal},
		{"Gene2 area", "gene2", KindReal},
		{"Gene3 area", "gene3", KindReal},
		{"Dapi/Gene1(area)", "dapi_gene1", KindReal},
		{"Dapi/Gene2(area)", "dapi_gene2", KindReal},
		{"Dapi/Gene3(area)", "dapi_gene3", KindReal},
		{"Gene1(area)/Gene2", "gene1_gene2", KindReal},
		{"Gene1(area)/Gene3", "gene1_gene3", KindReal},
		{"Gene2(area)/Gene3", "gene2_gene3", KindReal},
		{"Gene1(area)/Gene2/Gene3", "gene1_gene2_gene3", KindReal},
	},
}

// NucleusRows builds one NucleiTable row per nucleus, in population order.
func NucleusRows(image string, nuclei *objects.Population, records *nucleus.Records) ([]Row, error) {
	rows := make([]Row, 0, nuclei.Len())
	for _, obj := range nuclei.Objects() {
		r, err := records.Get(obj.ID)
		if err != nil {
			return nil, fmt.Errorf("result row for nucleus %d: %w", obj.Label, err)
		}
		rows = append(rows, Row{
			image,
			obj.Label,
			r.Volume,
			r.GFP,
			r.CC1,
			r.NG2Mean,
			r.NG2MeanCorrected,
		})
	}
	return rows, nil
}

// GeneSets are the populations produced by the genes2d analysis of one image.
type GeneSets struct {
	Dapi  *objects.Population
	Gene1 *objects.Population
	Gene2 *objects.Population
	Gene3 *objects.Population

	// Gene objects colocalized with a nucleus
	Gene1Dapi *objects.Population
	Gene2Dapi *objects.Population
	Gene3Dapi *objects.Population

	// Pairs and triple of nucleus-colocalized genes
	Gene1Gene2      *objects.Population
	Gene1Gene3      *objects.Population
	Gene2Gene3      *objects.Population
	Gene1Gene2Gene3 *objects.Population
}

// others lists every population except Dapi in column order.
func (g GeneSets) others() []*objects.Population {
	return []*objects.Population{
		g.Gene1, g.Gene2, g.Gene3,
		g.Gene1Dapi, g.Gene2Dapi, g.Gene3Dapi,
		g.Gene1Gene2, g.Gene1Gene3, g.Gene2Gene3,
		g.Gene1Gene2Gene3,
	}
}

// GeneCountRow builds the GeneCountsTable row of one image.
func GeneCountRow(image string, g GeneSets) Row {
	row := Row{image, popLen(g.Dapi)}
	for _, p := range g.others() {
		row = append(row, popLen(p))
	}
	return row
}

// GeneAreaRows builds one GeneAreasTable row per DAPI nucleus. Each column
// holds the size of the object carrying the nucleus label in that population,
// or Missing when there is none.
func GeneAreaRows(image string, g GeneSets) []Row {
	if g.Dapi == nil {
		return nil
	}
	others := g.others()
	rows := make([]Row, 0, g.Dapi.Len())
	for _, nuc := range g.Dapi.Objects() {
		row := Row{image, nuc.Volume()}
		for _, p := range others {
			row = append(row, sizeAt(p, nuc.Label))
		}
		rows = append(rows, row)
	}
	return rows
}

func popLen(p *objects.Population) int {
	if p == nil {
		return 0
	}
	return p.Len()
}

func sizeAt(p *objects.Population, label int) any {
	if p == nil {
		return Missing
	}
	obj, ok := p.GetByLabel(label)
	if !ok {
		return Missing
	}
	return obj.Volume()
}
