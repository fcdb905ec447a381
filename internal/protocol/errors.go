package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Entity layer.
	ErrBadEntity        = "E_BAD_ENTITY"
	ErrNotFound         = "E_NOT_FOUND"
	ErrMissingReference = "E_MISSING_REFERENCE"
	ErrConflict         = "E_CONFLICT"
	ErrInternal         = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrProtoVersion:     {},
	ErrBadEntity:        {},
	ErrNotFound:         {},
	ErrMissingReference: {},
	ErrConflict:         {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
