package objects

import (
	"sort"

	"github.com/orion-cirb/Coloc-3DCells/internal/models"
)

// FromLabelVolume decomposes a label volume into one object per distinct
// non-zero label. Objects are ordered by ascending label and keep the label
// they had in the volume; IDs are 0..n-1 in the same order. A volume with no
// labels gives an empty population.
func FromLabelVolume(lv *models.LabelVolume, cal models.Calibration) *Population {
	labelRuns := make(map[int32][]Run, 64)

	var curLabel int32
	var curStart, curRun int
	flush := func(y, z int) {
		if curRun > 0 && curLabel != 0 {
			labelRuns[curLabel] = append(labelRuns[curLabel], Run{Z: z, Y: y, X0: curStart, X1: curStart + curRun - 1})
		}
		curRun = 0
	}

	i := 0
	for z := 0; z < lv.Depth; z++ {
		for y := 0; y < lv.Height; y++ {
			curLabel = 0
			curRun = 0
			for x := 0; x < lv.Width; x++ {
				label := lv.Data[i]
				i++
				// A label switch (or background) ends the current run.
				if label != curLabel {
					flush(y, z)
					curLabel = label
					if label != 0 {
						curStart = x
						curRun = 1
					}
				} else if label != 0 {
					curRun++
				}
			}
			// Runs never cross rows.
			flush(y, z)
		}
	}

	labels := make([]int32, 0, len(labelRuns))
	for label := range labelRuns {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	pop := NewPopulation(cal)
	for id, label := range labels {
		// Runs were produced in scan order, so they are already normalized.
		obj := newObject(int(label), labelRuns[label], cal)
		obj.ID = id
		pop.index[obj.Label] = len(pop.objects)
		pop.objects = append(pop.objects, obj)
	}
	return pop
}

// DrawInto writes every member's label into dst. Voxels outside dst are skipped.
func (p *Population) DrawInto(dst *models.LabelVolume) {
	for _, obj := range p.objects {
		drawRuns(dst, obj.runs, int32(obj.Label))
	}
}

// DrawValueInto writes value into dst for every member voxel.
func (p *Population) DrawValueInto(dst *models.LabelVolume, value int32) {
	for _, obj := range p.objects {
		drawRuns(dst, obj.runs, value)
	}
}

func drawRuns(dst *models.LabelVolume, runs []Run, value int32) {
	dims := dst.Dims()
	for _, r := range runs {
		if r.Z < 0 || r.Z >= dims.Depth || r.Y < 0 || r.Y >= dims.Height {
			continue
		}
		x0 := max(r.X0, 0)
		x1 := min(r.X1, dims.Width-1)
		row := dims.Index(0, r.Y, r.Z)
		for x := x0; x <= x1; x++ {
			dst.Data[row+x] = value
		}
	}
}
