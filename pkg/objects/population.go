package objects

import (
	"fmt"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
)

// Population is an ordered collection of objects with unique labels.
//
// All filter methods work IN PLACE and relabel the survivors to 1..n afterwards:
// colocalization and result lookups index objects by label, so the index must
// never be stale once a stage is done.
type Population struct {
	objects []*Object3D
	index   map[int]int
	cal     models.Calibration
}

// NewPopulation creates an empty population using cal for every member.
func NewPopulation(cal models.Calibration) *Population {
	return &Population{
		index: make(map[int]int),
		cal:   cal,
	}
}

// Calibration returns the voxel size shared by the members.
func (p *Population) Calibration() models.Calibration {
	return p.cal
}

// Len returns the number of objects.
func (p *Population) Len() int {
	return len(p.objects)
}

// At returns the i-th object in iteration order.
func (p *Population) At(i int) *Object3D {
	return p.objects[i]
}

// Objects returns the members in iteration order.
func (p *Population) Objects() []*Object3D {
	out := make([]*Object3D, len(p.objects))
	copy(out, p.objects)
	return out
}

// Add appends obj, which takes the population's calibration.
func (p *Population) Add(obj *Object3D) error {
	if _, exists := p.index[obj.Label]; exists {
		return fmt.Errorf("label %d already in population", obj.Label)
	}
	obj.cal = p.cal
	p.index[obj.Label] = len(p.objects)
	p.objects = append(p.objects, obj)
	return nil
}

// GetByLabel looks an object up by its current label.
func (p *Population) GetByLabel(label int) (*Object3D, bool) {
	i, ok := p.index[label]
	if !ok {
		return nil, false
	}
	return p.objects[i], true
}

// Relabel assigns labels 1..n in iteration order and rebuilds the index.
func (p *Population) Relabel() {
	p.index = make(map[int]int, len(p.objects))
	for i, obj := range p.objects {
		obj.Label = i + 1
		p.index[obj.Label] = i
	}
}

// RemoveIf drops every object for which remove returns true, then relabels.
// It returns the number of objects removed.
func (p *Population) RemoveIf(remove func(*Object3D) bool) int {
	kept := p.objects[:0]
	for _, obj := range p.objects {
		if !remove(obj) {
			kept = append(kept, obj)
		}
	}
	removed := len(p.objects) - len(kept)
	for i := len(kept); i < len(p.objects); i++ {
		p.objects[i] = nil
	}
	p.objects = kept
	p.Relabel()
	return removed
}

// FilterBySize removes, in place, every object whose physical volume is
// outside [min, max], then relabels.
func (p *Population) FilterBySize(min, max float64) (int, error) {
	if min > max {
		return 0, fmt.Errorf("size filter [%g, %g]: %w", min, max, models.ErrInvalidRange)
	}
	return p.RemoveIf(func(o *Object3D) bool {
		vol := o.Volume()
		return vol < min || vol > max
	}), nil
}

// FilterByIntensity removes, in place, every object whose statistic over vol
// is <= threshold, then relabels.
func (p *Population) FilterByIntensity(vol *models.Volume, threshold float64, s Statistic) int {
	return p.RemoveIf(func(o *Object3D) bool {
		return o.Intensity(vol, s) <= threshold
	})
}

// FilterOneZ removes objects that lie on a single z plane, then relabels.
func (p *Population) FilterOneZ() int {
	return p.RemoveIf(func(o *Object3D) bool {
		return o.Planes() == 1
	})
}

// TotalVolume sums the physical volume of all members.
func (p *Population) TotalVolume() float64 {
	total := 0.0
	for _, obj := range p.objects {
		total += obj.Volume()
	}
	return total
}

// TotalIntensity sums the integrated intensity of vol under all members.
func (p *Population) TotalIntensity(vol *models.Volume) float64 {
	total := 0.0
	for _, obj := range p.objects {
		total += obj.Intensity(vol, StatSum)
	}
	return total
}

// Labels returns the current labels in iteration order.
func (p *Population) Labels() []int {
	labels := make([]int, len(p.objects))
	for i, obj := range p.objects {
		labels[i] = obj.Label
	}
	return labels
}
