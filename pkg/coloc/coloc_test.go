package coloc

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
	"github.com/orion-cirb/Coloc-3DCells/pkg/nucleus"
	"github.com/orion-cirb/Coloc-3DCells/pkg/objects"
)

var cal = models.Calibration{X: 1, Y: 1, Z: 1, Unit: "µm"}

// popOf builds a population from single-row x-ranges on plane 0, row y.
func popOf(t *testing.T, ranges map[int][3]int) *objects.Population {
	t.Helper()
	pop := objects.NewPopulation(cal)
	labels := make([]int, 0, len(ranges))
	for l := range ranges {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	for _, l := range labels {
		r := ranges[l]
		obj, err := objects.NewObject(l, []objects.Run{{Z: 0, Y: r[0], X0: r[1], X1: r[2]}}, cal)
		require.NoError(t, err)
		require.NoError(t, pop.Add(obj))
	}
	return pop
}

func TestColocalizeEmpty(t *testing.T) {
	a := popOf(t, map[int][3]int{1: {0, 0, 9}})
	empty := objects.NewPopulation(cal)

	assert.Equal(t, 0, Colocalize(a, empty, 0).Len())
	assert.Equal(t, 0, Colocalize(empty, a, 0).Len())
	assert.Equal(t, 0, ColocalizeTriple(a, a, empty, 0).Len())
}

func TestColocalizeThreshold(t *testing.T) {
	// A = x 0..9, B = x 5..14: 5 shared voxels, half of A
	a := popOf(t, map[int][3]int{1: {0, 0, 9}})
	b := popOf(t, map[int][3]int{1: {0, 5, 14}})

	tests := []struct {
		minFraction float64
		expected    int
	}{
		{0, 1},
		{0.1, 1},
		{0.49, 1},
		{0.5, 0},
		{0.6, 0},
	}
	for _, tc := range tests {
		got := Colocalize(a, b, tc.minFraction).Len()
		if got != tc.expected {
			t.Errorf("minFraction %v: expected %d, got %d", tc.minFraction, tc.expected, got)
		}
	}
}

func TestColocalizeKeepsLabelsAndOrder(t *testing.T) {
	a := popOf(t, map[int][3]int{
		3: {0, 0, 3},
		7: {2, 0, 3},
		9: {4, 0, 3},
	})
	b := popOf(t, map[int][3]int{
		1: {0, 1, 2},
		2: {4, 0, 3},
	})
	out := Colocalize(a, b, 0)
	assert.Equal(t, []int{3, 9}, out.Labels())

	// results are copies
	out.Relabel()
	assert.Equal(t, []int{3, 7, 9}, a.Labels())
}

func TestColocalizeFirstMatchOnly(t *testing.T) {
	a := popOf(t, map[int][3]int{1: {0, 0, 9}})
	b := popOf(t, map[int][3]int{
		4: {0, 8, 9},
		2: {0, 0, 1},
	})
	out := Colocalize(a, b, 0)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, 1, out.At(0).Label)
}

func TestColocalizeIgnoresOtherPlanes(t *testing.T) {
	a := popOf(t, map[int][3]int{1: {0, 0, 9}})
	b := objects.NewPopulation(cal)
	obj, err := objects.NewObject(1, []objects.Run{{Z: 1, Y: 0, X0: 0, X1: 9}}, cal)
	require.NoError(t, err)
	require.NoError(t, b.Add(obj))

	assert.Equal(t, 0, Colocalize(a, b, 0).Len())
}

func TestColocalizeTripleIsChain(t *testing.T) {
	a := popOf(t, map[int][3]int{1: {0, 0, 9}, 2: {2, 0, 9}, 3: {4, 0, 9}})
	b := popOf(t, map[int][3]int{1: {0, 0, 9}, 2: {2, 0, 9}})
	c := popOf(t, map[int][3]int{1: {2, 0, 9}, 2: {4, 0, 9}})

	triple := ColocalizeTriple(a, b, c, 0.25)
	chain := Colocalize(Colocalize(a, b, 0.25), c, 0.25)
	assert.Equal(t, chain.Labels(), triple.Labels())
	assert.Equal(t, []int{2}, triple.Labels())
}

func TestColocalizeAnnotated(t *testing.T) {
	lv := models.NewLabelVolume(10, 3, 1)
	for x := 0; x < 4; x++ {
		lv.Set(x, 0, 0, 1)
		lv.Set(x, 2, 0, 2)
	}
	nuclei := objects.FromLabelVolume(lv, cal)
	records, err := nucleus.NewRecords(nuclei)
	require.NoError(t, err)
	gfp := popOf(t, map[int][3]int{5: {2, 0, 3}})

	out, err := ColocalizeAnnotated(nuclei, gfp, 0.25, records, nucleus.RoleGFP)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())

	r0, _ := records.Get(0)
	r1, _ := records.Get(1)
	assert.False(t, r0.GFP)
	assert.True(t, r1.GFP)
}

func TestColocalizeAnnotatedMissingRecord(t *testing.T) {
	a := popOf(t, map[int][3]int{1: {0, 0, 3}})
	a.At(0).ID = 42
	b := popOf(t, map[int][3]int{1: {0, 0, 3}})
	records, err := nucleus.NewRecords(objects.NewPopulation(cal))
	require.NoError(t, err)

	_, err = ColocalizeAnnotated(a, b, 0, records, nucleus.RoleCC1)
	assert.ErrorIs(t, err, models.ErrLabelNotFound)
}

func TestCountAndMatchingSubset(t *testing.T) {
	// two a objects both cover b1 entirely; b2 is barely touched
	a := popOf(t, map[int][3]int{
		1: {0, 0, 5},
		2: {0, 2, 9},
	})
	b := popOf(t, map[int][3]int{
		1: {0, 3, 4},
		2: {0, 9, 18},
	})

	assert.Equal(t, 2, CountColocalizing(a, b, 0.5))
	sub, err := MatchingSubset(a, b, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, sub.Labels())

	assert.Equal(t, 3, CountColocalizing(a, b, 0))
	sub, err = MatchingSubset(a, b, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, sub.Labels())
}

func TestSubsetsReportDuplicateLabels(t *testing.T) {
	a := popOf(t, map[int][3]int{1: {0, 0, 20}})
	b := popOf(t, map[int][3]int{
		1: {0, 0, 4},
		2: {0, 8, 12},
	})
	// Label is an exported field; changing it without Relabel breaks uniqueness
	b.At(1).Label = 1

	_, err := MatchingSubset(a, b, 0)
	assert.Error(t, err)

	_, err = ObjectsColocalizedWith(a.At(0), b, 0.5)
	assert.Error(t, err)
}

func TestObjectsColocalizedWith(t *testing.T) {
	cell, err := objects.NewObject(1, []objects.Run{{Z: 0, Y: 0, X0: 0, X1: 9}}, cal)
	require.NoError(t, err)
	pop := popOf(t, map[int][3]int{
		4: {0, 0, 1},
		6: {0, 8, 11},
		8: {0, 9, 18},
		9: {1, 0, 9},
	})
	out, err := ObjectsColocalizedWith(cell, pop, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, out.Labels())
	assert.Equal(t, 2, out.At(0).Size())
	assert.Equal(t, 4, out.At(1).Size())
}
