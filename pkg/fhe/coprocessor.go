package fhe

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Coprocessor executes operations on encrypted values referenced by handles.
//
// Implementations keep ciphertext material and any secret keys strictly
// inside their own boundary; the rest of the system only ever sees handles.
// Every operation that produces a value returns a fresh handle.
type Coprocessor interface {
	// VerifyInput ingests an externally produced ciphertext. The proof must
	// bind the ciphertext bytes to the submitting caller; a ciphertext
	// replayed by a different caller is rejected with ErrInvalidProof.
	VerifyInput(ctx context.Context, ciphertext, proof []byte, caller common.Address, typ Type) (Handle, error)

	// TrivialEncrypt encrypts a plaintext scalar known to the host.
	TrivialEncrypt(ctx context.Context, value uint64, typ Type) (Handle, error)

	// RandEncrypted samples a uniformly random value of the given numeric
	// type under encryption. The sampled plaintext is never revealed.
	RandEncrypted(ctx context.Context, typ Type) (Handle, error)

	// Add returns a handle to the homomorphic sum of two numeric ciphertexts
	// of the same type. The result is carried at 64-bit width so running
	// sums cannot wrap the narrower input domain.
	Add(ctx context.Context, a, b Handle) (Handle, error)

	// DivScalar divides a numeric ciphertext by a plaintext scalar,
	// truncating toward zero. Rounding is not controllable.
	DivScalar(ctx context.Context, a Handle, divisor uint64) (Handle, error)

	// Decrypt reveals a numeric plaintext. Authorization is the caller's
	// responsibility; the coprocessor itself performs no ACL checks.
	Decrypt(ctx context.Context, h Handle) (uint64, error)

	// DecryptBytes reveals a blob plaintext.
	DecryptBytes(ctx context.Context, h Handle) ([]byte, error)

	// TypeOf reports the plaintext type of a stored ciphertext.
	TypeOf(ctx context.Context, h Handle) (Type, error)
}
