package entity

import (
	"bytes"
	"encoding/json"
)

// Metadata is category-specific state. The sync core only carries it; the
// metadata registry is the only place that produces or interprets Payload.
type Metadata struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (m *Metadata) Equal(o *Metadata) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.Type == o.Type && bytes.Equal(m.Payload, o.Payload)
}
