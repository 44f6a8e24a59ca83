package nn

import (
	"fmt"
	"math"
	"slices"
)

type TargetType string

const (
	TargetBox  TargetType = "box"
	TargetMask TargetType = "mask"
)

// AllInstances selects every instance of a class
const AllInstances = "all"

// UserBoxScore is the confidence given to boxes drawn by a user
const UserBoxScore = 1.0

// Prediction is the result of running one detector over one image.
// The per-instance slices (Classes, Scores, Instances, and Boxes or Masks when the detector
// produces them) are parallel, in detection order.
type Prediction struct {
	ClassNames []string       `json:"class_names"`  // Full vocabulary of the detector
	NameToID   map[string]int `json:"name2int"`     // Class name to class id
	Classes    []int          `json:"pred_classes"` // Class id of each instance
	Labels     []string       `json:"pred_labels"`  // Distinct class names found in Classes
	Scores     []float64      `json:"scores"`       // Confidence of each instance
	Boxes      []Box          `json:"boxes"`        // Empty if the detector doesn't produce boxes
	Masks      []*Mask        `json:"masks"`        // Empty if the detector doesn't segment. Entries may be nil.
	Instances  []int          `json:"instance_ids"` // Per-class index of each instance
	Text       []string       `json:"text,omitempty"`

	// Populated on the first call to AddLabeledBox
	*Adjusted
}

// Adjusted is the detector output extended with user drawn boxes.
// The first len(Prediction.Classes) elements of each slice are a copy of the detector output.
type Adjusted struct {
	UserBoxes    []Box     `json:"user_boxes"`
	ClassesAdj   []int     `json:"pred_classes_adj"`
	ScoresAdj    []float64 `json:"scores_adj"`
	BoxesAdj     []Box     `json:"boxes_adj"`
	InstancesAdj []int     `json:"instance_ids_adj"`
	LabelsAdj    []string  `json:"pred_labels_adj"`
	IsUserBox    []bool    `json:"is_user_box"`
}

// DenseNameToID maps each class name to its position in classNames
func DenseNameToID(classNames []string) map[string]int {
	m := make(map[string]int, len(classNames))
	for i, c := range classNames {
		m[c] = i
	}
	return m
}

// NewPrediction builds a record out of raw detections.
// If nameToID is nil, class ids are positions in classNames.
// Object classes are ids, as found in nameToID.
func NewPrediction(classNames []string, nameToID map[string]int, objects []ObjectDetection) *Prediction {
	if nameToID == nil {
		nameToID = DenseNameToID(classNames)
	}
	idToName := map[int]string{}
	for name, id := range nameToID {
		idToName[id] = name
	}
	p := &Prediction{
		ClassNames: classNames,
		NameToID:   nameToID,
		Classes:    make([]int, 0, len(objects)),
		Labels:     []string{},
		Scores:     make([]float64, 0, len(objects)),
		Boxes:      make([]Box, 0, len(objects)),
		Masks:      []*Mask{},
		Instances:  make([]int, 0, len(objects)),
	}
	counter := map[int]int{}
	for _, obj := range objects {
		p.Classes = append(p.Classes, obj.Class)
		p.Scores = append(p.Scores, float64(obj.Confidence))
		p.Boxes = append(p.Boxes, BoxFromRect(obj.Box))
		p.Instances = append(p.Instances, counter[obj.Class])
		if counter[obj.Class] == 0 {
			p.Labels = append(p.Labels, idToName[obj.Class])
		}
		counter[obj.Class]++
	}
	return p
}

// HasAdjusted returns true if the user has added boxes to this record
func (p *Prediction) HasAdjusted() bool {
	return p.Adjusted != nil
}

// Clone returns a deep copy
func (p *Prediction) Clone() *Prediction {
	c := &Prediction{
		ClassNames: slices.Clone(p.ClassNames),
		NameToID:   make(map[string]int, len(p.NameToID)),
		Classes:    slices.Clone(p.Classes),
		Labels:     slices.Clone(p.Labels),
		Scores:     slices.Clone(p.Scores),
		Boxes:      slices.Clone(p.Boxes),
		Masks:      slices.Clone(p.Masks), // masks are never modified, so they are shared
		Instances:  slices.Clone(p.Instances),
		Text:       slices.Clone(p.Text),
	}
	for k, v := range p.NameToID {
		c.NameToID[k] = v
	}
	if p.Adjusted != nil {
		c.Adjusted = &Adjusted{
			UserBoxes:    slices.Clone(p.UserBoxes),
			ClassesAdj:   slices.Clone(p.ClassesAdj),
			ScoresAdj:    slices.Clone(p.ScoresAdj),
			BoxesAdj:     slices.Clone(p.BoxesAdj),
			InstancesAdj: slices.Clone(p.InstancesAdj),
			LabelsAdj:    slices.Clone(p.LabelsAdj),
			IsUserBox:    slices.Clone(p.IsUserBox),
		}
	}
	return c
}

// Normalize replaces nil slices with empty ones, so that the JSON form carries
// empty arrays instead of nulls.
func (p *Prediction) Normalize() {
	if p.ClassNames == nil {
		p.ClassNames = []string{}
	}
	if p.NameToID == nil {
		p.NameToID = map[string]int{}
	}
	if p.Classes == nil {
		p.Classes = []int{}
	}
	if p.Labels == nil {
		p.Labels = []string{}
	}
	if p.Scores == nil {
		p.Scores = []float64{}
	}
	if p.Boxes == nil {
		p.Boxes = []Box{}
	}
	if p.Masks == nil {
		p.Masks = []*Mask{}
	}
	if p.Instances == nil {
		p.Instances = []int{}
	}
}

// Validate checks that the record obeys the detector contract
func (p *Prediction) Validate() error {
	for i, s := range p.Scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: score %v is %v", ErrSerialization, i, s)
		}
	}
	if p.Adjusted != nil {
		for i, s := range p.ScoresAdj {
			if math.IsNaN(s) || math.IsInf(s, 0) {
				return fmt.Errorf("%w: adjusted score %v is %v", ErrSerialization, i, s)
			}
		}
	}

	if len(p.NameToID) != len(p.ClassNames) {
		return fmt.Errorf("%w: %v class names but %v entries in name2int", ErrInvalidPrediction, len(p.ClassNames), len(p.NameToID))
	}
	knownIDs := map[int]bool{}
	for _, name := range p.ClassNames {
		id, ok := p.NameToID[name]
		if !ok {
			return fmt.Errorf("%w: class '%v' is missing from name2int", ErrInvalidPrediction, name)
		}
		knownIDs[id] = true
	}

	n := len(p.Classes)
	if len(p.Scores) != n || len(p.Instances) != n {
		return fmt.Errorf("%w: %v classes, %v scores, %v instance ids", ErrInvalidPrediction, n, len(p.Scores), len(p.Instances))
	}
	if len(p.Boxes) != 0 && len(p.Boxes) != n {
		return fmt.Errorf("%w: %v classes but %v boxes", ErrInvalidPrediction, n, len(p.Boxes))
	}
	if len(p.Masks) != 0 && len(p.Masks) != n {
		return fmt.Errorf("%w: %v classes but %v masks", ErrInvalidPrediction, n, len(p.Masks))
	}
	for _, c := range p.Classes {
		if !knownIDs[c] {
			return fmt.Errorf("%w: class id %v is not in name2int", ErrInvalidPrediction, c)
		}
	}

	var shape *Mask
	for i, m := range p.Masks {
		if m == nil {
			continue
		}
		if len(m.Bits) != m.Width*m.Height {
			return fmt.Errorf("%w: mask %v is malformed", ErrInvalidPrediction, i)
		}
		if shape == nil {
			shape = m
		} else if m.Width != shape.Width || m.Height != shape.Height {
			return fmt.Errorf("%w: mask %v is %vx%v, but mask 0 is %vx%v", ErrInvalidPrediction, i, m.Width, m.Height, shape.Width, shape.Height)
		}
	}

	if p.Adjusted != nil {
		a := p.Adjusted
		na := len(a.ClassesAdj)
		if len(a.ScoresAdj) != na || len(a.InstancesAdj) != na || len(a.IsUserBox) != na {
			return fmt.Errorf("%w: adjusted sequences have different lengths", ErrInvalidPrediction)
		}
		if na < n || !slices.Equal(a.ClassesAdj[:n], p.Classes) {
			return fmt.Errorf("%w: adjusted classes are not an extension of the detector classes", ErrInvalidPrediction)
		}
		if len(a.BoxesAdj) != len(p.Boxes)+len(a.UserBoxes) {
			return fmt.Errorf("%w: %v adjusted boxes, expected %v", ErrInvalidPrediction, len(a.BoxesAdj), len(p.Boxes)+len(a.UserBoxes))
		}
	}
	return nil
}

func (p *Prediction) classID(className string) (int, error) {
	id, ok := p.NameToID[className]
	if !ok {
		return 0, fmt.Errorf("%w: '%v'", ErrUnknownClass, className)
	}
	return id, nil
}

// Return the class and instance sequences, adjusted or not
func (p *Prediction) classSequences(useAdjusted bool) (classes, instances []int) {
	if useAdjusted && p.Adjusted != nil {
		return p.ClassesAdj, p.InstancesAdj
	}
	return p.Classes, p.Instances
}

// Return the boxes with the class of each box.
// A detector that only segments has no boxes, although its instances still have classes. Once
// a user adds boxes to such a record, the adjusted boxes are the user boxes alone, which belong
// to the tail of the adjusted classes. So we always pair boxes with the tail of the classes.
func (p *Prediction) boxSequences(useAdjusted bool) (boxes []Box, classes []int) {
	boxes = p.Boxes
	classes = p.Classes
	if useAdjusted && p.Adjusted != nil {
		boxes = p.BoxesAdj
		classes = p.ClassesAdj
	}
	offset := len(classes) - len(boxes)
	if offset < 0 {
		return boxes[:len(classes)], classes
	}
	return boxes, classes[offset:]
}
