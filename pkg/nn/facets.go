package nn

import (
	"strconv"

	"github.com/cyclopcam/anonymiser/pkg/gen"
)

// PredTypes returns the kinds of target that can be anonymised.
// Box comes before mask. An empty result means there is nothing to anonymise.
func (p *Prediction) PredTypes(useAdjusted bool) []TargetType {
	types := []TargetType{}
	boxes := p.Boxes
	if useAdjusted && p.Adjusted != nil {
		boxes = p.BoxesAdj
	}
	if len(boxes) != 0 {
		types = append(types, TargetBox)
	}
	if len(p.Masks) != 0 {
		types = append(types, TargetMask)
	}
	return types
}

// PredClasses returns the distinct class names that were found
func (p *Prediction) PredClasses(useAdjusted bool) []string {
	if useAdjusted && p.Adjusted != nil {
		return p.LabelsAdj
	}
	return p.Labels
}

// InstanceIDs returns the instance choices for a class, starting with AllInstances.
// When there is only one instance, AllInstances is the only choice.
func (p *Prediction) InstanceIDs(className string, useAdjusted bool) ([]string, error) {
	classID, err := p.classID(className)
	if err != nil {
		return nil, err
	}
	classes, instances := p.classSequences(useAdjusted)
	ids := []string{}
	for i, c := range classes {
		if c == classID {
			ids = append(ids, strconv.Itoa(instances[i]))
		}
	}
	result := []string{AllInstances}
	if len(ids) > 1 {
		result = append(result, ids...)
	}
	return result, nil
}

// InstanceCount returns the number of instances of the class
func (p *Prediction) InstanceCount(className string, useAdjusted bool) (int, error) {
	classID, err := p.classID(className)
	if err != nil {
		return 0, err
	}
	classes, _ := p.classSequences(useAdjusted)
	return gen.Count(classes, classID), nil
}
