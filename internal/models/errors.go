package models

import "errors"

// ErrMalformedEvent is returned for gateway events that reference a guild, member or
// channel that cannot be resolved. Such events are skipped.
var ErrMalformedEvent = errors.New("malformed event")
