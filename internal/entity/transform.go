package entity

import "fmt"

type Vec3 [3]float64

type Quat [4]float64

var IdentityQuat = Quat{0, 0, 0, 1}

// Space says what a Transform is relative to. A transform is either world
// relative or relative to the entity's parent, never both.
type Space uint8

const (
	SpaceWorld Space = iota + 1
	SpaceLocal
)

func (s Space) String() string {
	switch s {
	case SpaceWorld:
		return "WORLD"
	case SpaceLocal:
		return "LOCAL"
	default:
		return "UNKNOWN"
	}
}

func (s Space) MarshalText() ([]byte, error) {
	switch s {
	case SpaceWorld, SpaceLocal:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("invalid transform space %d", s)
}

func (s *Space) UnmarshalText(b []byte) error {
	switch string(b) {
	case "WORLD":
		*s = SpaceWorld
	case "LOCAL":
		*s = SpaceLocal
	default:
		return fmt.Errorf("invalid transform space %q", b)
	}
	return nil
}

type Transform struct {
	Space    Space `json:"space"`
	Position Vec3  `json:"position"`
	Rotation Quat  `json:"rotation"`
	Scale    Vec3  `json:"scale"`
}

func WorldTransform(pos Vec3, rot Quat, scale Vec3) Transform {
	return Transform{Space: SpaceWorld, Position: pos, Rotation: rot, Scale: scale}
}

func LocalTransform(pos Vec3, rot Quat, scale Vec3) Transform {
	return Transform{Space: SpaceLocal, Position: pos, Rotation: rot, Scale: scale}
}
