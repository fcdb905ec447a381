package metadata

import (
	"worldsync/internal/entity"
	"worldsync/internal/host"
)

const (
	TypeBattery          = "BATTERY"
	TypePlantable        = "PLANTABLE"
	TypeCreature         = "CREATURE"
	TypeSign             = "SIGN"
	TypeStorage          = "STORAGE"
	TypeFireExtinguisher = "FIRE_EXTINGUISHER"
)

type BatteryMetadata struct {
	Charge   float64 `json:"charge"`
	Capacity float64 `json:"capacity"`
}

type PlantableMetadata struct {
	Progress float64 `json:"progress"`
}

type CreatureMetadata struct {
	Age           float64 `json:"age"`
	Mature        bool    `json:"mature"`
	NextBreedTime float64 `json:"next_breed_time"`
}

type SignMetadata struct {
	Text       string `json:"text"`
	ScaleIndex int    `json:"scale_index"`
}

type StorageMetadata struct {
	Count   int      `json:"count"`
	Classes []string `json:"classes"`
}

type FireExtinguisherMetadata struct {
	Fuel float64 `json:"fuel"`
}

type BatteryExtractor struct{}

func (BatteryExtractor) Type() string { return TypeBattery }

func (BatteryExtractor) Extract(obj host.Object) (entity.Metadata, bool) {
	b, ok := obj.(host.Battery)
	if !ok {
		return entity.Metadata{}, false
	}
	return encode(TypeBattery, BatteryMetadata{Charge: b.Charge(), Capacity: b.Capacity()})
}

type PlantableExtractor struct{}

func (PlantableExtractor) Type() string { return TypePlantable }

func (PlantableExtractor) Extract(obj host.Object) (entity.Metadata, bool) {
	p, ok := obj.(host.Plantable)
	if !ok {
		return entity.Metadata{}, false
	}
	return encode(TypePlantable, PlantableMetadata{Progress: p.GrowthProgress()})
}

type CreatureExtractor struct{}

func (CreatureExtractor) Type() string { return TypeCreature }

func (CreatureExtractor) Extract(obj host.Object) (entity.Metadata, bool) {
	c, ok := obj.(host.Creature)
	if !ok {
		return entity.Metadata{}, false
	}
	return encode(TypeCreature, CreatureMetadata{Age: c.Age(), Mature: c.Mature(), NextBreedTime: c.NextBreedTime()})
}

type SignExtractor struct{}

func (SignExtractor) Type() string { return TypeSign }

func (SignExtractor) Extract(obj host.Object) (entity.Metadata, bool) {
	s, ok := obj.(host.Sign)
	if !ok {
		return entity.Metadata{}, false
	}
	return encode(TypeSign, SignMetadata{Text: s.Text(), ScaleIndex: s.ScaleIndex()})
}

// StorageExtractor records what a container holds. An empty container has
// nothing worth replicating.
type StorageExtractor struct{}

func (StorageExtractor) Type() string { return TypeStorage }

func (StorageExtractor) Extract(obj host.Object) (entity.Metadata, bool) {
	s, ok := obj.(host.Storage)
	if !ok {
		return entity.Metadata{}, false
	}
	items := s.StoredItems()
	if len(items) == 0 {
		return entity.Metadata{}, false
	}
	md := StorageMetadata{Count: len(items), Classes: make([]string, 0, len(items))}
	for _, it := range items {
		md.Classes = append(md.Classes, it.ClassID())
	}
	return encode(TypeStorage, md)
}

type FireExtinguisherExtractor struct{}

func (FireExtinguisherExtractor) Type() string { return TypeFireExtinguisher }

func (FireExtinguisherExtractor) Extract(obj host.Object) (entity.Metadata, bool) {
	f, ok := obj.(host.FireExtinguisher)
	if !ok {
		return entity.Metadata{}, false
	}
	return encode(TypeFireExtinguisher, FireExtinguisherMetadata{Fuel: f.Fuel()})
}
