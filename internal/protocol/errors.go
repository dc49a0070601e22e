package protocol

const (
	ErrBadRequest = "E_BAD_REQUEST"
	ErrNotFound   = "E_NOT_FOUND"
	ErrRateLimit  = "E_RATE_LIMIT"
	ErrConflict   = "E_CONFLICT"
	ErrStale      = "E_STALE"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest: {},
	ErrNotFound:   {},
	ErrRateLimit:  {},
	ErrConflict:   {},
	ErrStale:      {},
	ErrInternal:   {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
