package entity

import "github.com/google/uuid"

// ID identifies a replicated object across every process of a session.
// The zero value means "absent".
type ID = uuid.UUID

var NoID ID

func NewID() ID { return uuid.New() }

func ParseID(s string) (ID, error) { return uuid.Parse(s) }

// TechType is the host's item/category tag carried on every entity.
type TechType string

const TechTypeNone TechType = "NONE"
