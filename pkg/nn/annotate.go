package nn

import (
	"slices"

	"github.com/cyclopcam/anonymiser/pkg/gen"
)

// AddLabeledBox appends a user drawn box of class 'label' to the adjusted view of the record.
// If label is not part of the detector's vocabulary, the record is left unchanged.
// Repeated calls with the same box add the box repeatedly.
func (p *Prediction) AddLabeledBox(box Box, label string) error {
	if err := box.Validate(); err != nil {
		return err
	}
	if !slices.Contains(p.ClassNames, label) {
		return nil
	}
	classID, ok := p.NameToID[label]
	if !ok {
		return nil
	}

	if p.Adjusted == nil {
		p.Adjusted = &Adjusted{
			UserBoxes:    []Box{},
			ClassesAdj:   slices.Clone(p.Classes),
			ScoresAdj:    slices.Clone(p.Scores),
			BoxesAdj:     slices.Clone(p.Boxes),
			InstancesAdj: slices.Clone(p.Instances),
			LabelsAdj:    slices.Clone(p.Labels),
			IsUserBox:    make([]bool, len(p.Classes)),
		}
	}
	a := p.Adjusted

	a.UserBoxes = append(a.UserBoxes, box)
	a.ScoresAdj = append(a.ScoresAdj, UserBoxScore)
	a.BoxesAdj = append(a.BoxesAdj, box)
	a.IsUserBox = append(a.IsUserBox, true)
	if !slices.Contains(a.LabelsAdj, label) {
		a.LabelsAdj = append(a.LabelsAdj, label)
	}

	// Multi-class detectors number user boxes within their class. Single-class detectors use
	// a running counter over all adjusted instances.
	newID := 0
	if len(p.ClassNames) > 1 {
		newID = gen.Count(a.ClassesAdj, classID)
	} else {
		newID = len(a.InstancesAdj)
	}
	a.ClassesAdj = append(a.ClassesAdj, classID)
	a.InstancesAdj = append(a.InstancesAdj, newID)
	return nil
}
