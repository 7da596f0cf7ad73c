package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrBadRequest      = "E_BAD_REQUEST"
	ErrTooLarge        = "E_TOO_LARGE"

	// Decoding. These mirror the schematic error codes.
	ErrFormat = "E_FORMAT"
	ErrSchema = "E_SCHEMA"
	ErrIndex  = "E_INDEX"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrTooLarge:        {},
	ErrFormat:          {},
	ErrSchema:          {},
	ErrIndex:           {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
