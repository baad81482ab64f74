// Package coloc finds objects of one population that overlap objects of another.
package coloc

import (
	"sort"

	flatbush "github.com/bmharper/flatbush-go"

	"github.com/orion-cirb/Coloc-3DCells/pkg/objects"
)

// index answers "which members of a population may touch this object" with an
// XY bounding-box tree. Candidates come back in population order.
type index struct {
	members []*objects.Object3D
	fb      *flatbush.Flatbush[int32]
}

func newIndex(pop *objects.Population) *index {
	idx := &index{members: pop.Objects()}
	if len(idx.members) == 0 {
		return idx
	}
	idx.fb = flatbush.NewFlatbush[int32]()
	idx.fb.Reserve(len(idx.members))
	for _, m := range idx.members {
		bb := m.BoundingBox()
		idx.fb.Add(int32(bb.XMin), int32(bb.YMin), int32(bb.XMax), int32(bb.YMax))
	}
	idx.fb.Finish()
	return idx
}

// candidates returns the members whose bounding box intersects obj's.
func (idx *index) candidates(obj *objects.Object3D) []*objects.Object3D {
	if idx.fb == nil {
		return nil
	}
	bb := obj.BoundingBox()
	hits := idx.fb.Search(int32(bb.XMin), int32(bb.YMin), int32(bb.XMax), int32(bb.YMax))
	sort.Ints(hits)

	out := make([]*objects.Object3D, 0, len(hits))
	for _, j := range hits {
		m := idx.members[j]
		mb := m.BoundingBox()
		if mb.ZMax < bb.ZMin || mb.ZMin > bb.ZMax {
			continue
		}
		out = append(out, m)
	}
	return out
}
