package vehicle

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// GenericModelName is the registry name for Generic.
const GenericModelName = "generic"

var ErrUnknownVehicle = errors.New("unknown vehicle model")

// Options are the tunables a factory may read.
type Options struct {
	SpeedMps float64
}

// Factory returns a fresh Simulator; the driver needs a new instance per pass.
type Factory func() Simulator

type builder func(Options) Factory

var (
	registryMu sync.RWMutex
	registry   = map[string]builder{
		GenericModelName: func(Options) Factory {
			return func() Simulator { return NewGeneric() }
		},
		RoverModelName: func(o Options) Factory {
			return func() Simulator { return NewRover(o.SpeedMps) }
		},
	}
)

// Register adds or replaces a model under name.
func Register(name string, build func(Options) Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = build
}

// New resolves a model name (case-insensitive) to a Factory.
func New(name string, opts Options) (Factory, error) {
	registryMu.RLock()
	b, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownVehicle, name, strings.Join(Models(), ", "))
	}
	return b(opts), nil
}

func Models() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
