// Package identity defines the domain model for encrypted identity records.
package identity

import (
	"fmt"
	"time"

	"github.com/cipherid/registry-middleware/pkg/fhe"
)

// UserID is the plaintext numeric handle issued by the identifier mapping
// service. It carries no identity information itself.
type UserID uint64

// Field names the encrypted attributes of an identity record.
type Field string

const (
	// FieldID is the encrypted random internal identifier.
	FieldID Field = "id"
	// FieldScore is the 16-bit numeric attribute claims aggregate over.
	FieldScore Field = "score"
	// FieldFirstname is a fixed-width encrypted byte blob.
	FieldFirstname Field = "firstname"
	// FieldLastname is a fixed-width encrypted byte blob.
	FieldLastname Field = "lastname"
	// FieldBirthdate is a 32-bit unix timestamp.
	FieldBirthdate Field = "birthdate"
)

// Fields lists every recognized field in storage order.
var Fields = []Field{FieldID, FieldScore, FieldFirstname, FieldLastname, FieldBirthdate}

// ParseField validates a caller-supplied field name.
func ParseField(name string) (Field, error) {
	f := Field(name)
	for _, known := range Fields {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unrecognized field name %q", name)
}

// Type returns the plaintext type of a field's ciphertext.
func (f Field) Type() fhe.Type {
	switch f {
	case FieldID:
		return fhe.TypeUint64
	case FieldScore:
		return fhe.TypeUint16
	case FieldBirthdate:
		return fhe.TypeUint32
	default:
		return fhe.TypeBytes32
	}
}

// Record is an encrypted identity. Created exactly once per UserID and
// immutable afterwards; every field is write-once.
type Record struct {
	UserID       UserID
	ID           fhe.Handle
	Score        fhe.Handle
	Firstname    fhe.Handle
	Lastname     fhe.Handle
	Birthdate    fhe.Handle
	RegisteredAt time.Time
}

// Handle returns the ciphertext handle stored for a field.
func (r *Record) Handle(f Field) fhe.Handle {
	switch f {
	case FieldID:
		return r.ID
	case FieldScore:
		return r.Score
	case FieldFirstname:
		return r.Firstname
	case FieldLastname:
		return r.Lastname
	case FieldBirthdate:
		return r.Birthdate
	default:
		return fhe.Handle{}
	}
}

// Handles returns all field handles in storage order.
func (r *Record) Handles() []fhe.Handle {
	handles := make([]fhe.Handle, 0, len(Fields))
	for _, f := range Fields {
		handles = append(handles, r.Handle(f))
	}
	return handles
}
