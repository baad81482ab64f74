// Package nucleus keeps the per-nucleus annotation records that the
// colocalization and intensity stages fill in.
//
// Records are keyed by the object ID assigned when the nucleus population was
// built, never by label: labels change on every relabel, IDs do not.
package nucleus

import (
	"fmt"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
	"github.com/orion-cirb/Coloc-3DCells/pkg/objects"
)

// Role is the part an auxiliary channel plays in the analysis.
type Role int

const (
	RoleNone Role = iota
	RoleGFP
	RoleCC1
	RoleNG2
)

var roleNames = map[Role]string{
	RoleNone: "None",
	RoleGFP:  "GFP",
	RoleCC1:  "CC1",
	RoleNG2:  "NG2",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole maps a channel role name to a Role.
func ParseRole(name string) (Role, error) {
	for role, n := range roleNames {
		if n == name {
			return role, nil
		}
	}
	return RoleNone, fmt.Errorf("unknown channel role %q", name)
}

// Record is everything measured for one nucleus.
type Record struct {
	// ID is the nucleus object ID the record belongs to
	ID int

	// Label is the nucleus label when the record was created, for display only
	Label int

	// Volume is the physical nucleus volume
	Volume float64

	// GFP is set when the nucleus colocalizes with a GFP cell
	GFP bool

	// CC1 is set when the nucleus colocalizes with a CC1 cell
	CC1 bool

	// NG2Mean is the mean NG2 intensity in the dilated nucleus
	NG2Mean float64

	// NG2MeanCorrected is NG2Mean minus the NG2 background
	NG2MeanCorrected float64
}

// colocFlags sets the colocalization flag of a role.
var colocFlags = map[Role]func(*Record){
	RoleGFP: func(r *Record) { r.GFP = true },
	RoleCC1: func(r *Record) { r.CC1 = true },
}

// intensitySetters stores a halo intensity measurement for a role.
var intensitySetters = map[Role]func(r *Record, mean, corrected float64){
	RoleNG2: func(r *Record, mean, corrected float64) {
		r.NG2Mean = mean
		r.NG2MeanCorrected = corrected
	},
}

// Records is the arena of annotation records for one image.
type Records struct {
	items []Record
	byID  map[int]int
}

// NewRecords creates one record per nucleus, in population order, with the
// nucleus volume filled in. Two nuclei sharing an ID give ErrDuplicateID.
func NewRecords(nuclei *objects.Population) (*Records, error) {
	rs := &Records{
		items: make([]Record, 0, nuclei.Len()),
		byID:  make(map[int]int, nuclei.Len()),
	}
	for _, obj := range nuclei.Objects() {
		if _, dup := rs.byID[obj.ID]; dup {
			return nil, fmt.Errorf("nucleus %d has id %d: %w", obj.Label, obj.ID, models.ErrDuplicateID)
		}
		rs.byID[obj.ID] = len(rs.items)
		rs.items = append(rs.items, Record{
			ID:     obj.ID,
			Label:  obj.Label,
			Volume: obj.Volume(),
		})
	}
	return rs, nil
}

// Len returns the number of records.
func (rs *Records) Len() int {
	return len(rs.items)
}

// Get returns the record of object id.
func (rs *Records) Get(id int) (*Record, error) {
	i, ok := rs.byID[id]
	if !ok {
		return nil, fmt.Errorf("nucleus %d: %w", id, models.ErrLabelNotFound)
	}
	return &rs.items[i], nil
}

// All returns the records in creation order.
func (rs *Records) All() []Record {
	out := make([]Record, len(rs.items))
	copy(out, rs.items)
	return out
}

// MarkColocalized sets the colocalization flag of role on the record of object id.
func (rs *Records) MarkColocalized(id int, role Role) error {
	set, ok := colocFlags[role]
	if !ok {
		return fmt.Errorf("role %v has no colocalization flag", role)
	}
	r, err := rs.Get(id)
	if err != nil {
		return err
	}
	set(r)
	return nil
}

// SetIntensity stores the halo intensity of role on the record of object id.
func (rs *Records) SetIntensity(id int, role Role, mean, corrected float64) error {
	set, ok := intensitySetters[role]
	if !ok {
		return fmt.Errorf("role %v has no intensity measurement", role)
	}
	r, err := rs.Get(id)
	if err != nil {
		return err
	}
	set(r, mean, corrected)
	return nil
}
