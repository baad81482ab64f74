package coloc

import (
	"github.com/orion-cirb/Coloc-3DCells/pkg/nucleus"
	"github.com/orion-cirb/Coloc-3DCells/pkg/objects"
)

// Colocalize returns a copy of every object of a that overlaps some object of b
// by more than minFraction of its own size. A minFraction of 0 accepts any
// overlap. Only the first matching b, in population order, is considered, so
// each object of a appears at most once. Results keep their labels.
func Colocalize(a, b *objects.Population, minFraction float64) *objects.Population {
	out, _ := colocalize(a, b, minFraction, nil)
	return out
}

// ColocalizeAnnotated is Colocalize that also sets the role flag on the record
// of every matching object of a. A matching object without a record is an error.
func ColocalizeAnnotated(a, b *objects.Population, minFraction float64, records *nucleus.Records, role nucleus.Role) (*objects.Population, error) {
	return colocalize(a, b, minFraction, func(obj *objects.Object3D) error {
		return records.MarkColocalized(obj.ID, role)
	})
}

// ColocalizeTriple returns the objects of a that colocalize with b and, of
// those, the ones that also colocalize with c.
func ColocalizeTriple(a, b, c *objects.Population, minFraction float64) *objects.Population {
	return Colocalize(Colocalize(a, b, minFraction), c, minFraction)
}

func colocalize(a, b *objects.Population, minFraction float64, onMatch func(*objects.Object3D) error) (*objects.Population, error) {
	out := objects.NewPopulation(a.Calibration())
	if a.Len() == 0 || b.Len() == 0 {
		return out, nil
	}

	idx := newIndex(b)
	for _, obj := range a.Objects() {
		need := minFraction * float64(obj.Size())
		for _, cand := range idx.candidates(obj) {
			if float64(objects.Overlap(obj, cand)) <= need {
				continue
			}
			if onMatch != nil {
				if err := onMatch(obj); err != nil {
					return nil, err
				}
			}
			if err := out.Add(obj.Clone()); err != nil {
				return nil, err
			}
			break
		}
	}
	return out, nil
}

// CountColocalizing counts the (a, b) pairs whose overlap exceeds pourc of the
// b object's size.
func CountColocalizing(a, b *objects.Population, pourc float64) int {
	n := 0
	eachPair(a, b, pourc, func(_, _ *objects.Object3D) error {
		n++
		return nil
	})
	return n
}

// MatchingSubset returns the objects of b that take part in at least one pair
// counted by CountColocalizing, in order of first occurrence.
func MatchingSubset(a, b *objects.Population, pourc float64) (*objects.Population, error) {
	out := objects.NewPopulation(b.Calibration())
	seen := make(map[*objects.Object3D]bool)
	err := eachPair(a, b, pourc, func(_, m *objects.Object3D) error {
		if seen[m] {
			return nil
		}
		seen[m] = true
		return out.Add(m.Clone())
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func eachPair(a, b *objects.Population, pourc float64, fn func(obj, m *objects.Object3D) error) error {
	if a.Len() == 0 || b.Len() == 0 {
		return nil
	}
	idx := newIndex(b)
	for _, obj := range a.Objects() {
		for _, m := range idx.candidates(obj) {
			if float64(objects.Overlap(obj, m)) > float64(m.Size())*pourc {
				if err := fn(obj, m); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ObjectsColocalizedWith returns the members of pop covered by obj for at least
// pourc of their own size, relabelled 1..n.
func ObjectsColocalizedWith(obj *objects.Object3D, pop *objects.Population, pourc float64) (*objects.Population, error) {
	out := objects.NewPopulation(pop.Calibration())
	for _, m := range pop.Objects() {
		ov := objects.Overlap(obj, m)
		if ov == 0 {
			continue
		}
		if float64(ov)/float64(m.Size()) >= pourc {
			if err := out.Add(m.Clone()); err != nil {
				return nil, err
			}
		}
	}
	out.Relabel()
	return out, nil
}
