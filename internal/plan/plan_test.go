package plan

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `{
	"id": "p1",
	"name": "EVA 3",
	"site": "HI",
	"sequence": [
		{"id": "A", "type": "Station", "coordinates": {"lon": 0, "lat": 0},
		 "commands": [{"id": "c1", "type": "Sample", "duration": 30, "params": {"depth": 2}}]},
		{"id": "s1", "type": "Segment", "commands": [{"type": "Drive", "duration": 120}]},
		{"id": "B", "type": "Station", "coordinates": {"lon": 10, "lat": 0}}
	]
}`

func TestDecode(t *testing.T) {
	p, err := Decode(strings.NewReader(sampleDoc))
	require.NoError(t, err)

	assert.Equal(t, "p1", p.ID)
	require.Len(t, p.Sequence, 3)
	assert.True(t, p.Sequence[0].IsStation())
	assert.True(t, p.Sequence[1].IsSegment())
	assert.Equal(t, 30.0, p.Sequence[0].Commands[0].Duration)
	assert.Equal(t, 2.0, p.Sequence[0].Commands[0].Params["depth"])

	// Missing command id gets generated.
	assert.NotEmpty(t, p.Sequence[1].Commands[0].ID)
	assert.NoError(t, Validate(p))
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"sequence": [`))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0644))

	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "EVA 3", p.Name)
	assert.Equal(t, 2, p.CommandCount())
}

func TestValidate(t *testing.T) {
	station := func(id string) *PathElement {
		return &PathElement{ID: id, Type: TypeStation, Coordinates: &LonLat{}}
	}
	segment := func(id string) *PathElement {
		return &PathElement{ID: id, Type: TypeSegment}
	}

	tests := []struct {
		name    string
		seq     []*PathElement
		wantErr bool
	}{
		{"empty", nil, false},
		{"single station", []*PathElement{station("A")}, false},
		{"station segment station", []*PathElement{station("A"), segment("s"), station("B")}, false},
		{"ends on segment", []*PathElement{station("A"), segment("s")}, true},
		{"starts with segment", []*PathElement{segment("s"), station("A")}, true},
		{"two stations", []*PathElement{station("A"), station("B")}, true},
		{"duplicate id", []*PathElement{station("A"), segment("s"), station("A")}, true},
		{"unknown type", []*PathElement{{ID: "x", Type: "Waypoint"}}, true},
		{"station without coordinates", []*PathElement{{ID: "A", Type: TypeStation}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&Plan{ID: "p", Sequence: tt.seq})
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidSequence), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNeighbourStations(t *testing.T) {
	p, err := Decode(strings.NewReader(sampleDoc))
	require.NoError(t, err)

	assert.Equal(t, "A", p.StationBefore(1).ID)
	assert.Equal(t, "B", p.StationAfter(1).ID)
	assert.Nil(t, p.StationBefore(0))
	assert.Nil(t, p.StationAfter(2))
	assert.Equal(t, 1, p.IndexOf("s1"))
	assert.Equal(t, -1, p.IndexOf("nope"))
	assert.Len(t, p.Stations(), 2)
	assert.Equal(t, "B", p.Element("B").ID)
}

func TestLookups_SkipNilElements(t *testing.T) {
	p, err := Decode(strings.NewReader(sampleDoc))
	require.NoError(t, err)
	n := p.CommandCount()
	p.Sequence = append([]*PathElement{nil}, p.Sequence...)

	assert.Equal(t, n, p.CommandCount())
	assert.Nil(t, p.Element("missing"))
	assert.Equal(t, "B", p.Element("B").ID)
	assert.Equal(t, 2, p.IndexOf("s1"))
	assert.Equal(t, -1, p.IndexOf("missing"))
	assert.Len(t, p.Stations(), 2)
	assert.Nil(t, p.StationBefore(1))
}
