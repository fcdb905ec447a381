package protocol

import "worldsync/internal/entity"

// HELLO (client -> authority)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerName      string `json:"player_name"`
	// PlayerID is the client's own player entity, created locally.
	PlayerID entity.ID `json:"player_id"`
}

// WELCOME (authority -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	// Entities is the authority's current view, sent once on join.
	Entities []entity.Entity `json:"entities"`
}

// ERROR (authority -> client): a packet was rejected.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
	RefType         string `json:"ref_type,omitempty"`
}

func (*ErrorMsg) PacketType() string { return TypeError }

// ENTITY_DESTROYED (both directions)
type EntityDestroyed struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	ID              entity.ID `json:"id"`
}

func NewEntityDestroyed(id entity.ID) *EntityDestroyed {
	return &EntityDestroyed{Type: TypeEntityDestroyed, ProtocolVersion: Version, ID: id}
}

func (*EntityDestroyed) PacketType() string { return TypeEntityDestroyed }

// PICKUP_ITEM (client -> authority -> clients): the full inventory record of
// the picked up item.
type PickupItem struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Entity          entity.Entity `json:"entity"`
}

func NewPickupItem(e entity.Entity) *PickupItem {
	return &PickupItem{Type: TypePickupItem, ProtocolVersion: Version, Entity: e}
}

func (*PickupItem) PacketType() string { return TypePickupItem }

// ENTITY_SPAWNED_BY_CLIENT (client -> authority). IsAdditive asks the
// authority to add the entity rather than replace an existing record.
type EntitySpawnedByClient struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Entity          entity.Entity `json:"entity"`
	IsAdditive      bool          `json:"is_additive"`
}

func NewEntitySpawnedByClient(e entity.Entity, additive bool) *EntitySpawnedByClient {
	return &EntitySpawnedByClient{Type: TypeEntitySpawnedByClient, ProtocolVersion: Version, Entity: e, IsAdditive: additive}
}

func (*EntitySpawnedByClient) PacketType() string { return TypeEntitySpawnedByClient }

// SPAWN_ENTITIES (authority -> clients)
type SpawnEntities struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Entities        []entity.Entity `json:"entities"`
}

func NewSpawnEntities(es ...entity.Entity) *SpawnEntities {
	return &SpawnEntities{Type: TypeSpawnEntities, ProtocolVersion: Version, Entities: es}
}

func (*SpawnEntities) PacketType() string { return TypeSpawnEntities }

const ArmActionClawUse = "CLAW_USE"

// EXOSUIT_ARM_ACTION (both directions)
type ExosuitArmAction struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	ExosuitID       entity.ID `json:"exosuit_id"`
	Arm             string    `json:"arm"`
	Action          string    `json:"action"`
	Cooldown        float64   `json:"cooldown"`
}

func NewExosuitArmAction(exosuitID entity.ID, arm, action string, cooldown float64) *ExosuitArmAction {
	return &ExosuitArmAction{
		Type:            TypeExosuitArmAction,
		ProtocolVersion: Version,
		ExosuitID:       exosuitID,
		Arm:             arm,
		Action:          action,
		Cooldown:        cooldown,
	}
}

func (*ExosuitArmAction) PacketType() string { return TypeExosuitArmAction }
