package nn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddLabeledBox(t *testing.T) {
	p := personCarRecord()
	n := len(p.Classes)
	base := p.Clone()

	require.NoError(t, p.AddLabeledBox(Box{0, 0, 2, 2}, "car"))
	require.True(t, p.HasAdjusted())
	// "car" already has one instance
	require.Equal(t, 1, p.InstancesAdj[len(p.InstancesAdj)-1])
	require.Equal(t, []Box{{0, 0, 2, 2}}, p.UserBoxes)
	require.Equal(t, []bool{false, false, false, true}, p.IsUserBox)
	require.Equal(t, UserBoxScore, p.ScoresAdj[n])

	// Prefix preservation
	require.Equal(t, base.Classes, p.ClassesAdj[:n])
	require.Equal(t, base.Boxes, p.BoxesAdj[:n])
	require.Equal(t, base.Scores, p.ScoresAdj[:n])
	require.Equal(t, base.Instances, p.InstancesAdj[:n])

	// The detector output itself is untouched
	require.Equal(t, base.Classes, p.Classes)
	require.Equal(t, base.Boxes, p.Boxes)
	require.Equal(t, base.Instances, p.Instances)
	require.Equal(t, base.Labels, p.Labels)

	// The overlay does not share storage with the detector output
	p.ClassesAdj[0] = 1
	p.BoxesAdj[0][0] = 99
	require.Equal(t, 0, p.Classes[0])
	require.Equal(t, 0, p.Boxes[0][0])
	p.ClassesAdj[0] = 0
	p.BoxesAdj[0][0] = 0

	require.NoError(t, p.AddLabeledBox(Box{3, 3, 4, 4}, "person"))
	require.Equal(t, []int{0, 1, 0, 1, 2}, p.InstancesAdj)
	requireContiguousInstances(t, p.ClassesAdj, p.InstancesAdj)
	require.NoError(t, p.Validate())

	ids, err := p.InstanceIDs("car", true)
	require.NoError(t, err)
	require.Equal(t, []string{"all", "0", "1"}, ids)
	ids, err = p.InstanceIDs("car", false)
	require.NoError(t, err)
	require.Equal(t, []string{"all"}, ids)

	r, err := p.TargetRegions("car", "1", TargetBox, true, 100, 100)
	require.NoError(t, err)
	require.Equal(t, []int{0, 0, 1, 1}, r.Rows)
	require.Equal(t, []int{0, 1, 0, 1}, r.Cols)
}

func TestAddLabeledBoxRepeats(t *testing.T) {
	p := personCarRecord()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.AddLabeledBox(Box{0, 0, 2, 2}, "car"))
	}
	require.Equal(t, 3, len(p.UserBoxes))
	require.Equal(t, []int{0, 1, 0, 1, 2, 3}, p.InstancesAdj)
	require.Equal(t, []string{"person", "car"}, p.LabelsAdj)
}

func TestAddLabeledBoxUnknownLabel(t *testing.T) {
	p := personCarRecord()
	require.NoError(t, p.AddLabeledBox(Box{0, 0, 2, 2}, "dog"))
	require.False(t, p.HasAdjusted())
	require.Equal(t, personCarRecord(), p)
}

func TestAddLabeledBoxInvalidGeometry(t *testing.T) {
	p := personCarRecord()
	require.ErrorIs(t, p.AddLabeledBox(Box{5, 0, 2, 2}, "car"), ErrInvalidGeometry)
	require.False(t, p.HasAdjusted())
}

func TestAddLabeledBoxNewLabel(t *testing.T) {
	p := personCarRecord()
	p.ClassNames = append(p.ClassNames, "dog")
	p.NameToID["dog"] = 2
	require.NoError(t, p.AddLabeledBox(Box{0, 0, 2, 2}, "dog"))
	require.Equal(t, 0, p.InstancesAdj[3])
	require.Equal(t, []string{"person", "car", "dog"}, p.LabelsAdj)
	require.Equal(t, []string{"person", "car"}, p.Labels)
	require.Equal(t, []string{"dog"}, p.PredClasses(true)[2:])
}

// Instance ids for user boxes are numbered per class when the detector has several classes,
// but with a running counter over all instances when it has only one. This is inherited
// behaviour, and these tests pin it.
func TestAddLabeledBoxInstanceIDQuirk(t *testing.T) {
	// Multi-class: per class count
	p := personCarRecord()
	require.NoError(t, p.AddLabeledBox(Box{0, 0, 1, 1}, "car"))
	require.Equal(t, 1, p.InstancesAdj[3])
	require.NoError(t, p.AddLabeledBox(Box{0, 0, 1, 1}, "person"))
	require.Equal(t, 2, p.InstancesAdj[4])

	// Single-class: global count, with a sparse class id
	faces := &Prediction{
		ClassNames: []string{"face"},
		NameToID:   map[string]int{"face": 4},
		Classes:    []int{4, 4},
		Labels:     []string{"face"},
		Scores:     []float64{0.9, 0.9},
		Boxes:      []Box{{0, 0, 1, 1}, {1, 1, 2, 2}},
		Masks:      []*Mask{},
		Instances:  []int{0, 1},
	}
	require.NoError(t, faces.AddLabeledBox(Box{2, 2, 3, 3}, "face"))
	require.NoError(t, faces.AddLabeledBox(Box{3, 3, 4, 4}, "face"))
	require.Equal(t, []int{0, 1, 2, 3}, faces.InstancesAdj)
}

func TestAddLabeledBoxMaskOnly(t *testing.T) {
	m := NewMask(8, 8)
	m.FillBox(Box{0, 0, 2, 2})
	p := &Prediction{
		ClassNames: []string{"person", "car"},
		NameToID:   map[string]int{"person": 0, "car": 1},
		Classes:    []int{0},
		Labels:     []string{"person"},
		Scores:     []float64{0.5},
		Boxes:      []Box{},
		Masks:      []*Mask{m},
		Instances:  []int{0},
	}
	require.Equal(t, []TargetType{TargetMask}, p.PredTypes(true))
	require.NoError(t, p.AddLabeledBox(Box{4, 4, 6, 6}, "person"))
	require.NoError(t, p.Validate())
	require.Equal(t, []TargetType{TargetBox, TargetMask}, p.PredTypes(true))
	require.Equal(t, []bool{false, true}, p.IsUserBox)

	// The user box is the second person, and the only one with a box
	ids, err := p.InstanceIDs("person", true)
	require.NoError(t, err)
	require.Equal(t, []string{"all", "0", "1"}, ids)
	r, err := p.TargetRegions("person", "all", TargetBox, true, 100, 100)
	require.NoError(t, err)
	require.Equal(t, 4, r.Len())
	require.Equal(t, 4, r.Rows[0])

	r, err = p.TargetRegions("person", "all", TargetMask, true, 100, 100)
	require.NoError(t, err)
	require.Equal(t, 4, r.Len())
	require.Equal(t, 0, r.Rows[0])

	// Every listed id resolves. The detected person has no box, so it covers nothing.
	r, err = p.TargetRegions("person", "0", TargetBox, true, 100, 100)
	require.NoError(t, err)
	require.Equal(t, 0, r.Len())
	r, err = p.TargetRegions("person", "1", TargetBox, true, 100, 100)
	require.NoError(t, err)
	require.Equal(t, 4, r.Len())
	require.Equal(t, []int{4, 4, 5, 5}, r.Rows)
	require.Equal(t, []int{4, 5, 4, 5}, r.Cols)
	_, err = p.TargetRegions("person", "2", TargetBox, true, 100, 100)
	require.ErrorIs(t, err, ErrInstanceIndex)
}

func TestOversizedUserBoxIsClipped(t *testing.T) {
	p := personCarRecord()
	require.NoError(t, p.AddLabeledBox(Box{0, 0, 100000, 100000}, "car"))
	require.NoError(t, p.AddLabeledBox(Box{-5, 8, 1 << 33, 1 << 33}, "car"))
	require.NoError(t, p.AddLabeledBox(Box{50, 50, 60, 60}, "car"))

	r, err := p.TargetRegions("car", "1", TargetBox, true, 16, 12)
	require.NoError(t, err)
	require.Equal(t, 16*12, r.Len())

	r, err = p.TargetRegions("car", "2", TargetBox, true, 16, 12)
	require.NoError(t, err)
	require.Equal(t, 16*4, r.Len())
	require.Equal(t, 8, r.Rows[0])
	require.Equal(t, 0, r.Cols[0])
	for i := range r.Rows {
		require.Less(t, r.Rows[i], 12)
		require.Less(t, r.Cols[i], 16)
	}

	// Entirely outside the image
	r, err = p.TargetRegions("car", "3", TargetBox, true, 16, 12)
	require.NoError(t, err)
	require.Equal(t, 0, r.Len())
}
