// Package sealbox implements fhe.Coprocessor as an in-process secure zone.
//
// Plaintexts are sealed at rest with AES-256-GCM under per-handle keys
// derived from a master key with HKDF-SHA256, and are opened only inside
// coprocessor operations. This is the single-node stand-in for a real FHE
// coprocessor: handles behave identically (opaque, capability-gated,
// homomorphic add and truncating scalar division), only the hardness
// assumption differs.
package sealbox

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"

	"github.com/cipherid/registry-middleware/pkg/fhe"
	"github.com/cipherid/registry-middleware/pkg/ledger"
)

const masterKeySize = 32

type entry struct {
	typ    fhe.Type
	sealed []byte
}

// Sealbox holds sealed ciphertexts keyed by handle.
type Sealbox struct {
	mu        sync.RWMutex
	masterKey []byte
	ingestKey []byte
	entries   map[fhe.Handle]entry
}

// New creates a sealbox coprocessor from a 32-byte master key.
func New(masterKey []byte) (*Sealbox, error) {
	if len(masterKey) != masterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes", masterKeySize)
	}
	ingestKey, err := deriveKey(masterKey, "sealbox-ingest")
	if err != nil {
		return nil, err
	}
	return &Sealbox{
		masterKey: append([]byte(nil), masterKey...),
		ingestKey: ingestKey,
		entries:   make(map[fhe.Handle]entry),
	}, nil
}

// deriveKey derives a 32-byte AES key from the master key using HKDF-SHA256.
func deriveKey(masterKey []byte, info string) ([]byte, error) {
	reader := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	key := make([]byte, masterKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

func seal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func open(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("sealed payload too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed payload: %w", err)
	}
	return plaintext, nil
}

// store seals plaintext under a fresh handle. Insertion is journaled so a
// failed ledger call leaves no ciphertext behind.
func (s *Sealbox) store(ctx context.Context, plaintext []byte, typ fhe.Type) (fhe.Handle, error) {
	var h fhe.Handle
	seed := make([]byte, fhe.HandleSize)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return h, fmt.Errorf("failed to sample handle: %w", err)
	}
	copy(h[:], ethcrypto.Keccak256(seed))

	handleKey, err := deriveKey(s.masterKey, "sealbox-handle-"+h.Hex())
	if err != nil {
		return h, err
	}
	sealed, err := seal(handleKey, plaintext)
	if err != nil {
		return h, err
	}

	s.mu.Lock()
	s.entries[h] = entry{typ: typ, sealed: sealed}
	s.mu.Unlock()

	if journal, ok := ledger.JournalFrom(ctx); ok {
		journal.RecordUndo(func() {
			s.mu.Lock()
			delete(s.entries, h)
			s.mu.Unlock()
		})
	}
	return h, nil
}

func (s *Sealbox) load(h fhe.Handle) (fhe.Type, []byte, error) {
	s.mu.RLock()
	e, ok := s.entries[h]
	s.mu.RUnlock()
	if !ok {
		return 0, nil, fhe.ErrUnknownHandle
	}
	handleKey, err := deriveKey(s.masterKey, "sealbox-handle-"+h.Hex())
	if err != nil {
		return 0, nil, err
	}
	plaintext, err := open(handleKey, e.sealed)
	if err != nil {
		return 0, nil, err
	}
	return e.typ, plaintext, nil
}

func (s *Sealbox) loadNumeric(h fhe.Handle) (fhe.Type, uint64, error) {
	typ, plaintext, err := s.load(h)
	if err != nil {
		return 0, 0, err
	}
	if !typ.Numeric() {
		return 0, 0, fhe.ErrNotNumeric
	}
	if len(plaintext) != 8 {
		return 0, 0, fmt.Errorf("corrupt numeric plaintext: %d bytes", len(plaintext))
	}
	return typ, binary.BigEndian.Uint64(plaintext), nil
}

func encodeNumeric(value uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	return buf
}

// SealInput produces the (ciphertext, proof) pair a client submits for
// ingestion: the value sealed under the ingestion key, bound to the caller
// with a keccak256 proof. Mirrors the client-side input encryptor.
func (s *Sealbox) SealInput(value []byte, caller common.Address, typ fhe.Type) ([]byte, []byte, error) {
	if typ.Numeric() && len(value) != 8 {
		return nil, nil, fmt.Errorf("numeric input must be 8 bytes big-endian")
	}
	ciphertext, err := seal(s.ingestKey, value)
	if err != nil {
		return nil, nil, err
	}
	return ciphertext, inputProof(ciphertext, caller, typ), nil
}

// SealNumericInput is SealInput for scalar values.
func (s *Sealbox) SealNumericInput(value uint64, caller common.Address, typ fhe.Type) ([]byte, []byte, error) {
	return s.SealInput(encodeNumeric(value&typ.Mask()), caller, typ)
}

func inputProof(ciphertext []byte, caller common.Address, typ fhe.Type) []byte {
	return ethcrypto.Keccak256(ciphertext, caller.Bytes(), []byte{byte(typ)})
}

// VerifyInput implements fhe.Coprocessor.
func (s *Sealbox) VerifyInput(ctx context.Context, ciphertext, proof []byte, caller common.Address, typ fhe.Type) (fhe.Handle, error) {
	if !bytes.Equal(proof, inputProof(ciphertext, caller, typ)) {
		return fhe.Handle{}, fhe.ErrInvalidProof
	}
	plaintext, err := open(s.ingestKey, ciphertext)
	if err != nil {
		return fhe.Handle{}, fhe.ErrInvalidProof
	}
	if typ.Numeric() {
		if len(plaintext) != 8 {
			return fhe.Handle{}, fhe.ErrInvalidProof
		}
		value := binary.BigEndian.Uint64(plaintext) & typ.Mask()
		plaintext = encodeNumeric(value)
	}
	return s.store(ctx, plaintext, typ)
}

// TrivialEncrypt implements fhe.Coprocessor.
func (s *Sealbox) TrivialEncrypt(ctx context.Context, value uint64, typ fhe.Type) (fhe.Handle, error) {
	if !typ.Numeric() {
		return fhe.Handle{}, fhe.ErrNotNumeric
	}
	return s.store(ctx, encodeNumeric(value&typ.Mask()), typ)
}

// RandEncrypted implements fhe.Coprocessor.
func (s *Sealbox) RandEncrypted(ctx context.Context, typ fhe.Type) (fhe.Handle, error) {
	if !typ.Numeric() {
		return fhe.Handle{}, fhe.ErrNotNumeric
	}
	buf := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fhe.Handle{}, fmt.Errorf("failed to sample random value: %w", err)
	}
	value := binary.BigEndian.Uint64(buf) & typ.Mask()
	return s.store(ctx, encodeNumeric(value), typ)
}

// Add implements fhe.Coprocessor. The sum is carried at 64-bit width.
func (s *Sealbox) Add(ctx context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	_, va, err := s.loadNumeric(a)
	if err != nil {
		return fhe.Handle{}, err
	}
	_, vb, err := s.loadNumeric(b)
	if err != nil {
		return fhe.Handle{}, err
	}
	return s.store(ctx, encodeNumeric(va+vb), fhe.TypeUint64)
}

// DivScalar implements fhe.Coprocessor. Integer division truncates toward zero.
func (s *Sealbox) DivScalar(ctx context.Context, a fhe.Handle, divisor uint64) (fhe.Handle, error) {
	if divisor == 0 {
		return fhe.Handle{}, fhe.ErrDivisionByZero
	}
	_, va, err := s.loadNumeric(a)
	if err != nil {
		return fhe.Handle{}, err
	}
	return s.store(ctx, encodeNumeric(va/divisor), fhe.TypeUint64)
}

// Decrypt implements fhe.Coprocessor.
func (s *Sealbox) Decrypt(_ context.Context, h fhe.Handle) (uint64, error) {
	_, value, err := s.loadNumeric(h)
	return value, err
}

// DecryptBytes implements fhe.Coprocessor.
func (s *Sealbox) DecryptBytes(_ context.Context, h fhe.Handle) ([]byte, error) {
	typ, plaintext, err := s.load(h)
	if err != nil {
		return nil, err
	}
	if typ.Numeric() {
		return nil, fhe.ErrTypeMismatch
	}
	return plaintext, nil
}

// TypeOf implements fhe.Coprocessor.
func (s *Sealbox) TypeOf(_ context.Context, h fhe.Handle) (fhe.Type, error) {
	s.mu.RLock()
	e, ok := s.entries[h]
	s.mu.RUnlock()
	if !ok {
		return 0, fhe.ErrUnknownHandle
	}
	return e.typ, nil
}
