package host

// State capabilities read by metadata extractors. All are read-only.

type Battery interface {
	Charge() float64
	Capacity() float64
}

type Plantable interface {
	GrowthProgress() float64
}

type Creature interface {
	Age() float64
	Mature() bool
	NextBreedTime() float64
}

type Sign interface {
	Text() string
	ScaleIndex() int
}

type Storage interface {
	StoredItems() []Object
}

type FireExtinguisher interface {
	Fuel() float64
}
