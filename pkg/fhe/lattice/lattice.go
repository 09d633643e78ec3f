// Package lattice implements fhe.Coprocessor on the BGV scheme from
// lattigo. Addition runs homomorphically on ciphertexts. Scalar division is
// not a ring operation, so it is performed inside the coprocessor boundary:
// decrypt with the coprocessor-held secret key, truncate, re-encrypt. The
// secret key never leaves this package.
//
// Numeric plaintexts live in Z_t for the configured plaintext modulus; the
// registry's field domains (16-bit scores, 32-bit timestamps) and their
// running sums must stay below t.
package lattice

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"github.com/tuneinsight/lattigo/v5/schemes/bgv"

	"github.com/cipherid/registry-middleware/pkg/fhe"
	"github.com/cipherid/registry-middleware/pkg/ledger"
)

// blobSlots is the number of plaintext slots used to carry one byte blob.
const blobSlots = 32

type entry struct {
	typ fhe.Type
	ct  *rlwe.Ciphertext
}

// Box is a lattice-backed coprocessor.
type Box struct {
	mu        sync.Mutex
	params    bgv.Parameters
	sk        *rlwe.SecretKey
	encoder   *bgv.Encoder
	encryptor *rlwe.Encryptor
	decryptor *rlwe.Decryptor
	evaluator *bgv.Evaluator
	entries   map[fhe.Handle]entry
}

// New creates a lattice coprocessor with a freshly sampled secret key.
//
// The default parameter set (ring degree 2^12, ~26-bit plaintext modulus)
// leaves ample headroom for score sums across realistic cohort sizes.
func New() (*Box, error) {
	params, err := bgv.NewParametersFromLiteral(bgv.ParametersLiteral{
		LogN:             12,
		LogQ:             []int{45, 45, 45},
		LogP:             []int{50},
		PlaintextModulus: 0x3ee0001,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build BGV parameters: %w", err)
	}

	kgen := rlwe.NewKeyGenerator(params)
	sk := kgen.GenSecretKeyNew()

	return &Box{
		params:    params,
		sk:        sk,
		encoder:   bgv.NewEncoder(params),
		encryptor: rlwe.NewEncryptor(params, sk),
		decryptor: rlwe.NewDecryptor(params, sk),
		evaluator: bgv.NewEvaluator(params, nil),
		entries:   make(map[fhe.Handle]entry),
	}, nil
}

// store registers a ciphertext under a fresh handle. Insertion is journaled
// so a failed ledger call leaves no ciphertext behind.
func (b *Box) store(ctx context.Context, ct *rlwe.Ciphertext, typ fhe.Type) (fhe.Handle, error) {
	var h fhe.Handle
	seed := make([]byte, fhe.HandleSize)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return h, fmt.Errorf("failed to sample handle: %w", err)
	}
	copy(h[:], ethcrypto.Keccak256(seed))

	b.entries[h] = entry{typ: typ, ct: ct}

	if journal, ok := ledger.JournalFrom(ctx); ok {
		journal.RecordUndo(func() {
			b.mu.Lock()
			delete(b.entries, h)
			b.mu.Unlock()
		})
	}
	return h, nil
}

func (b *Box) encryptSlots(values []uint64) (*rlwe.Ciphertext, error) {
	pt := bgv.NewPlaintext(b.params, b.params.MaxLevel())
	if err := b.encoder.Encode(values, pt); err != nil {
		return nil, fmt.Errorf("failed to encode plaintext: %w", err)
	}
	ct, err := b.encryptor.EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt: %w", err)
	}
	return ct, nil
}

func (b *Box) decryptSlots(ct *rlwe.Ciphertext, n int) ([]uint64, error) {
	pt := b.decryptor.DecryptNew(ct)
	values := make([]uint64, b.params.MaxSlots())
	if err := b.encoder.Decode(pt, values); err != nil {
		return nil, fmt.Errorf("failed to decode plaintext: %w", err)
	}
	return values[:n], nil
}

// clampNumeric bounds a value to both the handle type domain and Z_t.
func (b *Box) clampNumeric(value uint64, typ fhe.Type) uint64 {
	value &= typ.Mask()
	return value % b.params.PlaintextModulus()
}

func inputProof(ciphertext []byte, caller common.Address, typ fhe.Type) []byte {
	return ethcrypto.Keccak256(ciphertext, caller.Bytes(), []byte{byte(typ)})
}

// SealNumericInput produces the (ciphertext, proof) pair a client submits
// for a scalar value: a BGV encryption bound to the caller. Mirrors the
// client-side input encryptor.
func (b *Box) SealNumericInput(value uint64, caller common.Address, typ fhe.Type) ([]byte, []byte, error) {
	if !typ.Numeric() {
		return nil, nil, fhe.ErrNotNumeric
	}
	b.mu.Lock()
	ct, err := b.encryptSlots([]uint64{b.clampNumeric(value, typ)})
	b.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}
	raw, err := ct.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serialize ciphertext: %w", err)
	}
	return raw, inputProof(raw, caller, typ), nil
}

// SealInput produces the (ciphertext, proof) pair for a byte blob. Blobs are
// carried one byte per plaintext slot.
func (b *Box) SealInput(value []byte, caller common.Address, typ fhe.Type) ([]byte, []byte, error) {
	if typ.Numeric() {
		if len(value) != 8 {
			return nil, nil, fmt.Errorf("numeric input must be 8 bytes big-endian")
		}
		return b.SealNumericInput(binary.BigEndian.Uint64(value), caller, typ)
	}
	if len(value) > blobSlots {
		return nil, nil, fmt.Errorf("blob input exceeds %d bytes", blobSlots)
	}
	slots := make([]uint64, blobSlots)
	for i, c := range value {
		slots[i] = uint64(c)
	}
	b.mu.Lock()
	ct, err := b.encryptSlots(slots)
	b.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}
	raw, err := ct.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serialize ciphertext: %w", err)
	}
	return raw, inputProof(raw, caller, typ), nil
}

// VerifyInput implements fhe.Coprocessor.
func (b *Box) VerifyInput(ctx context.Context, ciphertext, proof []byte, caller common.Address, typ fhe.Type) (fhe.Handle, error) {
	if !bytes.Equal(proof, inputProof(ciphertext, caller, typ)) {
		return fhe.Handle{}, fhe.ErrInvalidProof
	}
	ct := new(rlwe.Ciphertext)
	if err := ct.UnmarshalBinary(ciphertext); err != nil {
		return fhe.Handle{}, fhe.ErrInvalidProof
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store(ctx, ct, typ)
}

// TrivialEncrypt implements fhe.Coprocessor.
func (b *Box) TrivialEncrypt(ctx context.Context, value uint64, typ fhe.Type) (fhe.Handle, error) {
	if !typ.Numeric() {
		return fhe.Handle{}, fhe.ErrNotNumeric
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ct, err := b.encryptSlots([]uint64{b.clampNumeric(value, typ)})
	if err != nil {
		return fhe.Handle{}, err
	}
	return b.store(ctx, ct, typ)
}

// RandEncrypted implements fhe.Coprocessor.
func (b *Box) RandEncrypted(ctx context.Context, typ fhe.Type) (fhe.Handle, error) {
	if !typ.Numeric() {
		return fhe.Handle{}, fhe.ErrNotNumeric
	}
	buf := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fhe.Handle{}, fmt.Errorf("failed to sample random value: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ct, err := b.encryptSlots([]uint64{b.clampNumeric(binary.BigEndian.Uint64(buf), typ)})
	if err != nil {
		return fhe.Handle{}, err
	}
	return b.store(ctx, ct, typ)
}

// Add implements fhe.Coprocessor. The sum is computed homomorphically.
func (b *Box) Add(ctx context.Context, x, y fhe.Handle) (fhe.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ex, ok := b.entries[x]
	if !ok {
		return fhe.Handle{}, fhe.ErrUnknownHandle
	}
	ey, ok := b.entries[y]
	if !ok {
		return fhe.Handle{}, fhe.ErrUnknownHandle
	}
	if !ex.typ.Numeric() || !ey.typ.Numeric() {
		return fhe.Handle{}, fhe.ErrNotNumeric
	}

	sum, err := b.evaluator.AddNew(ex.ct, ey.ct)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("homomorphic add failed: %w", err)
	}
	return b.store(ctx, sum, fhe.TypeUint64)
}

// DivScalar implements fhe.Coprocessor. Division happens inside the
// coprocessor boundary (decrypt, truncate, re-encrypt); the result is a
// fresh ciphertext unlinkable to the operand.
func (b *Box) DivScalar(ctx context.Context, x fhe.Handle, divisor uint64) (fhe.Handle, error) {
	if divisor == 0 {
		return fhe.Handle{}, fhe.ErrDivisionByZero
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[x]
	if !ok {
		return fhe.Handle{}, fhe.ErrUnknownHandle
	}
	if !e.typ.Numeric() {
		return fhe.Handle{}, fhe.ErrNotNumeric
	}

	values, err := b.decryptSlots(e.ct, 1)
	if err != nil {
		return fhe.Handle{}, err
	}
	ct, err := b.encryptSlots([]uint64{values[0] / divisor})
	if err != nil {
		return fhe.Handle{}, err
	}
	return b.store(ctx, ct, fhe.TypeUint64)
}

// Decrypt implements fhe.Coprocessor.
func (b *Box) Decrypt(_ context.Context, h fhe.Handle) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[h]
	if !ok {
		return 0, fhe.ErrUnknownHandle
	}
	if !e.typ.Numeric() {
		return 0, fhe.ErrNotNumeric
	}
	values, err := b.decryptSlots(e.ct, 1)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// DecryptBytes implements fhe.Coprocessor.
func (b *Box) DecryptBytes(_ context.Context, h fhe.Handle) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[h]
	if !ok {
		return nil, fhe.ErrUnknownHandle
	}
	if e.typ.Numeric() {
		return nil, fhe.ErrTypeMismatch
	}
	values, err := b.decryptSlots(e.ct, blobSlots)
	if err != nil {
		return nil, err
	}
	blob := make([]byte, blobSlots)
	for i, v := range values {
		blob[i] = byte(v)
	}
	return blob, nil
}

// TypeOf implements fhe.Coprocessor.
func (b *Box) TypeOf(_ context.Context, h fhe.Handle) (fhe.Type, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[h]
	if !ok {
		return 0, fhe.ErrUnknownHandle
	}
	return e.typ, nil
}
