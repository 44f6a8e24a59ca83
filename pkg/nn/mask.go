package nn

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Mask is a per-pixel segmentation of one detected instance.
// Bits is row major, Width*Height long.
type Mask struct {
	Width  int
	Height int
	Bits   []bool
}

func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Bits:   make([]bool, width*height),
	}
}

func (m *Mask) At(x, y int) bool {
	return m.Bits[y*m.Width+x]
}

func (m *Mask) Set(x, y int, v bool) {
	m.Bits[y*m.Width+x] = v
}

// FillBox sets every pixel inside the box, clipped to the mask
func (m *Mask) FillBox(b Box) {
	for y := max(0, b.Y1()); y < min(m.Height, b.Y2()); y++ {
		for x := max(0, b.X1()); x < min(m.Width, b.X2()); x++ {
			m.Bits[y*m.Width+x] = true
		}
	}
}

func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// MarshalJSON emits the mask as nested boolean arrays, one array per row
func (m *Mask) MarshalJSON() ([]byte, error) {
	buf := bytes.Buffer{}
	buf.Grow(m.Height * (m.Width*6 + 2))
	buf.WriteByte('[')
	for y := 0; y < m.Height; y++ {
		if y != 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		row := m.Bits[y*m.Width : (y+1)*m.Width]
		for x, v := range row {
			if x != 0 {
				buf.WriteByte(',')
			}
			if v {
				buf.WriteString("true")
			} else {
				buf.WriteString("false")
			}
		}
		buf.WriteByte(']')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts rows of booleans, or rows of numbers where non-zero is set
func (m *Mask) UnmarshalJSON(data []byte) error {
	var rows [][]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	m.Height = len(rows)
	m.Width = 0
	if m.Height != 0 {
		m.Width = len(rows[0])
	}
	m.Bits = make([]bool, m.Width*m.Height)
	for y, row := range rows {
		if len(row) != m.Width {
			return fmt.Errorf("%w: mask row %v has %v columns, expected %v", ErrInvalidPrediction, y, len(row), m.Width)
		}
		for x, v := range row {
			switch t := v.(type) {
			case bool:
				m.Bits[y*m.Width+x] = t
			case float64:
				m.Bits[y*m.Width+x] = t != 0
			default:
				return fmt.Errorf("%w: mask value %v is not a boolean", ErrInvalidPrediction, v)
			}
		}
	}
	return nil
}
