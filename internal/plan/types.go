package plan

import "errors"

// ElementType discriminates the two kinds of path element.
type ElementType string

const (
	TypeStation ElementType = "Station"
	TypeSegment ElementType = "Segment"
)

var ErrInvalidSequence = errors.New("invalid plan sequence")

type LonLat struct {
	Lon float64 `json:"lon" msgpack:"lon"`
	Lat float64 `json:"lat" msgpack:"lat"`
}

type Plan struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Site     string         `json:"site,omitempty"`
	TimeZone string         `json:"timezone,omitempty"`
	Sequence []*PathElement `json:"sequence"`
}

// PathElement is a Station or a Segment. Segments have no coordinates of
// their own; their geometry comes from the stations on either side.
type PathElement struct {
	ID          string      `json:"id"`
	Type        ElementType `json:"type"`
	Name        string      `json:"name,omitempty"`
	Coordinates *LonLat     `json:"coordinates,omitempty"` // stations only
	Heading     *float64    `json:"heading,omitempty"`     // radians, stations only
	Commands    []*Command  `json:"commands,omitempty"`
}

type Command struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Duration float64        `json:"duration"` // seconds
	Params   map[string]any `json:"params,omitempty"`
}

func (e *PathElement) IsStation() bool { return e != nil && e.Type == TypeStation }
func (e *PathElement) IsSegment() bool { return e != nil && e.Type == TypeSegment }

// Element returns the path element with the given ID, or nil.
func (p *Plan) Element(id string) *PathElement {
	for _, el := range p.Sequence {
		if el != nil && el.ID == id {
			return el
		}
	}
	return nil
}

// IndexOf returns the sequence index of the element with the given ID, or -1.
func (p *Plan) IndexOf(id string) int {
	for i, el := range p.Sequence {
		if el != nil && el.ID == id {
			return i
		}
	}
	return -1
}

// StationBefore returns the closest station strictly before index i.
func (p *Plan) StationBefore(i int) *PathElement {
	for j := min(i, len(p.Sequence)) - 1; j >= 0; j-- {
		if p.Sequence[j].IsStation() {
			return p.Sequence[j]
		}
	}
	return nil
}

// StationAfter returns the closest station strictly after index i.
func (p *Plan) StationAfter(i int) *PathElement {
	for j := max(i+1, 0); j < len(p.Sequence); j++ {
		if p.Sequence[j].IsStation() {
			return p.Sequence[j]
		}
	}
	return nil
}

func (p *Plan) Stations() []*PathElement {
	var out []*PathElement
	for _, el := range p.Sequence {
		if el.IsStation() {
			out = append(out, el)
		}
	}
	return out
}

// CommandCount returns the number of commands across the whole sequence.
func (p *Plan) CommandCount() int {
	n := 0
	for _, el := range p.Sequence {
		if el != nil {
			n += len(el.Commands)
		}
	}
	return n
}
