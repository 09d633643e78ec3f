// Package fhe defines the ciphertext handle primitive the registry is built
// on: an opaque reference to an encrypted value that supports homomorphic
// addition, division by a plaintext scalar, and a two-tier capability list
// (persistent and transaction-scoped transient grants).
//
// Handles never expose plaintext. The only way from a handle back to a value
// is Coprocessor.Decrypt, and callers are expected to gate that behind an
// ACL check.
package fhe

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Type identifies the plaintext domain of an encrypted value.
type Type uint8

const (
	// TypeUint16 is a 16-bit unsigned numeric value.
	TypeUint16 Type = iota
	// TypeUint32 is a 32-bit unsigned numeric value (timestamps).
	TypeUint32
	// TypeUint64 is a 64-bit unsigned numeric value (internal ids, sums).
	TypeUint64
	// TypeBytes32 is a fixed-width 32-byte blob.
	TypeBytes32
)

func (t Type) String() string {
	switch t {
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeBytes32:
		return "bytes32"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Numeric reports whether the type supports homomorphic arithmetic.
func (t Type) Numeric() bool {
	return t == TypeUint16 || t == TypeUint32 || t == TypeUint64
}

// Mask returns the bit mask of the plaintext domain for numeric types.
func (t Type) Mask() uint64 {
	switch t {
	case TypeUint16:
		return 0xFFFF
	case TypeUint32:
		return 0xFFFFFFFF
	default:
		return ^uint64(0)
	}
}

// HandleSize is the byte length of a ciphertext handle.
const HandleSize = 32

// Handle is an opaque reference to an encrypted value held by a coprocessor.
type Handle [HandleSize]byte

// Hex returns the 0x-prefixed hex encoding of the handle.
func (h Handle) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Handle) String() string {
	return h.Hex()
}

// IsZero reports whether the handle is the zero value.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

// HandleFromHex parses a 0x-prefixed hex handle.
func HandleFromHex(s string) (Handle, error) {
	var h Handle
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return h, fmt.Errorf("invalid handle hex: %w", err)
	}
	if len(raw) != HandleSize {
		return h, fmt.Errorf("invalid handle length: expected %d, got %d", HandleSize, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

var (
	// ErrUnknownHandle is returned when a handle does not reference a stored ciphertext.
	ErrUnknownHandle = errors.New("unknown ciphertext handle")
	// ErrInvalidProof is returned when an input proof does not bind the ciphertext to its submitter.
	ErrInvalidProof = errors.New("invalid input proof")
	// ErrTypeMismatch is returned when an operation is applied across incompatible plaintext types.
	ErrTypeMismatch = errors.New("ciphertext type mismatch")
	// ErrNotNumeric is returned when arithmetic is attempted on a blob handle.
	ErrNotNumeric = errors.New("ciphertext type does not support arithmetic")
	// ErrDivisionByZero is returned for a zero plaintext divisor.
	ErrDivisionByZero = errors.New("division by zero scalar")
)
