package kem

import "errors"

// ErrInvalidKeySize is returned when a caller supplies a key or ciphertext
// whose length does not match ML-KEM-768's fixed sizes.
var ErrInvalidKeySize = errors.New("kem: invalid key or ciphertext size")
