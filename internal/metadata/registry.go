// Package metadata turns category-specific object state into opaque entity
// metadata. Extractors are registered once at startup and only read the
// objects they are given.
package metadata

import (
	"encoding/json"
	"fmt"

	"worldsync/internal/entity"
	"worldsync/internal/host"
)

type Extractor interface {
	// Type is the metadata type tag the extractor produces.
	Type() string
	// Extract returns ok=false when obj is not of the extractor's category
	// or has nothing to replicate.
	Extract(obj host.Object) (entity.Metadata, bool)
}

type Registry struct {
	extractors []Extractor
}

func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{}
	r.Register(extractors...)
	return r
}

// Defaults registers every built-in extractor.
func Defaults() *Registry {
	return NewRegistry(
		BatteryExtractor{},
		PlantableExtractor{},
		CreatureExtractor{},
		SignExtractor{},
		StorageExtractor{},
		FireExtinguisherExtractor{},
	)
}

func (r *Registry) Register(extractors ...Extractor) {
	r.extractors = append(r.extractors, extractors...)
}

// Extract dispatches to the first extractor that accepts obj.
func (r *Registry) Extract(obj host.Object) (*entity.Metadata, bool) {
	if obj == nil {
		return nil, false
	}
	for _, x := range r.extractors {
		if m, ok := x.Extract(obj); ok {
			return &m, true
		}
	}
	return nil, false
}

func encode(typ string, v any) (entity.Metadata, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return entity.Metadata{}, false
	}
	return entity.Metadata{Type: typ, Payload: b}, true
}

// Decode reads a payload produced by one of the built-in extractors.
func Decode[T any](m *entity.Metadata, want string) (T, error) {
	var v T
	if m == nil {
		return v, fmt.Errorf("metadata: nil, want %s", want)
	}
	if m.Type != want {
		return v, fmt.Errorf("metadata: type %s, want %s", m.Type, want)
	}
	if err := json.Unmarshal(m.Payload, &v); err != nil {
		return v, fmt.Errorf("metadata %s: %w", want, err)
	}
	return v, nil
}
