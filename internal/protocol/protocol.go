package protocol

import (
	"context"
	"encoding/json"
	"fmt"
)

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeError   = "ERROR"

	TypeEntityDestroyed       = "ENTITY_DESTROYED"
	TypePickupItem            = "PICKUP_ITEM"
	TypeEntitySpawnedByClient = "ENTITY_SPAWNED_BY_CLIENT"
	TypeSpawnEntities         = "SPAWN_ENTITIES"
	TypeExosuitArmAction      = "EXOSUIT_ARM_ACTION"
)

// Packet is any message exchanged after the handshake.
type Packet interface {
	PacketType() string
}

// Sender hands packets to the transport. It returns false when the packet
// was not accepted (no session, queue full); the caller does not retry.
type Sender interface {
	Send(ctx context.Context, p Packet) bool
}

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

func Encode(p Packet) ([]byte, error) {
	return json.Marshal(p)
}

// Decode parses a post-handshake packet.
func Decode(b []byte) (Packet, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return nil, err
	}
	if base.ProtocolVersion != Version {
		return nil, fmt.Errorf("%s: protocol version %q, want %q", base.Type, base.ProtocolVersion, Version)
	}
	var p Packet
	switch base.Type {
	case TypeEntityDestroyed:
		p = &EntityDestroyed{}
	case TypePickupItem:
		p = &PickupItem{}
	case TypeEntitySpawnedByClient:
		p = &EntitySpawnedByClient{}
	case TypeSpawnEntities:
		p = &SpawnEntities{}
	case TypeExosuitArmAction:
		p = &ExosuitArmAction{}
	case TypeError:
		p = &ErrorMsg{}
	default:
		return nil, fmt.Errorf("unknown packet type %q", base.Type)
	}
	if err := json.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("%s: %w", base.Type, err)
	}
	return p, nil
}
