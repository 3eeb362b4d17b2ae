package attest

import "errors"

// ErrInvalidKey is returned when a key blob cannot be parsed for the
// chosen algorithm.
var ErrInvalidKey = errors.New("attest: invalid key")
