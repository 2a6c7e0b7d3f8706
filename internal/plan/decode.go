package plan

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// Decode reads a JSON plan document. Elements and commands without an id get a
// random one so every entity can be keyed by ID.
func Decode(r io.Reader) (*Plan, error) {
	var p Plan
	dec := json.NewDecoder(r)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	AssignIDs(&p)
	return &p, nil
}

// LoadFile decodes and validates the plan stored at path.
func LoadFile(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := Validate(p); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func AssignIDs(p *Plan) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	for _, el := range p.Sequence {
		if el == nil {
			continue
		}
		if el.ID == "" {
			el.ID = uuid.NewString()
		}
		for _, c := range el.Commands {
			if c != nil && c.ID == "" {
				c.ID = uuid.NewString()
			}
		}
	}
}

// Validate checks that the sequence alternates Station, Segment, Station, ...
// and ends on a Station, that IDs are unique, and that stations are located.
func Validate(p *Plan) error {
	seen := make(map[string]bool)
	claim := func(id string) error {
		if id == "" {
			return fmt.Errorf("%w: empty id", ErrInvalidSequence)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidSequence, id)
		}
		seen[id] = true
		return nil
	}
	if err := claim(p.ID); err != nil {
		return err
	}
	for i, el := range p.Sequence {
		if el == nil {
			return fmt.Errorf("%w: nil element at %d", ErrInvalidSequence, i)
		}
		want := TypeStation
		if i%2 == 1 {
			want = TypeSegment
		}
		if el.Type != want {
			return fmt.Errorf("%w: element %d (%s) is %q, expected %q", ErrInvalidSequence, i, el.ID, el.Type, want)
		}
		if el.IsStation() && el.Coordinates == nil {
			return fmt.Errorf("%w: station %s has no coordinates", ErrInvalidSequence, el.ID)
		}
		if err := claim(el.ID); err != nil {
			return err
		}
		for _, c := range el.Commands {
			if c == nil {
				return fmt.Errorf("%w: nil command on %s", ErrInvalidSequence, el.ID)
			}
			if c.Duration < 0 {
				return fmt.Errorf("%w: command %s has negative duration", ErrInvalidSequence, c.ID)
			}
			if err := claim(c.ID); err != nil {
				return err
			}
		}
	}
	if n := len(p.Sequence); n > 0 && !p.Sequence[n-1].IsStation() {
		return fmt.Errorf("%w: sequence ends on %q", ErrInvalidSequence, p.Sequence[n-1].Type)
	}
	return nil
}
