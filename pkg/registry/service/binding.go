package service

import (
	"encoding/binary"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/cipherid/registry-middleware/pkg/identity"
)

// RegisterDigest is the digest a registrar must include in the signed
// registration message. It commits to the user id and the exact ciphertexts
// and proofs, so a captured signature cannot be replayed with a different
// user id or substituted inputs.
func RegisterDigest(userID identity.UserID, inputs ...EncryptedInput) common.Hash {
	var buf []byte
	buf = appendUint64(buf, uint64(userID))
	for _, in := range inputs {
		buf = appendBytes(buf, in.Ciphertext)
		buf = appendBytes(buf, in.Proof)
	}
	return ethcrypto.Keccak256Hash(buf)
}

// ClaimDigest is the digest a requester must include in the signed claim
// message. It commits to the user id list and the field names, order
// included.
func ClaimDigest(userIDs []identity.UserID, fieldNames []string) common.Hash {
	var buf []byte
	buf = appendUint64(buf, uint64(len(userIDs)))
	for _, id := range userIDs {
		buf = appendUint64(buf, uint64(id))
	}
	for _, name := range fieldNames {
		buf = appendBytes(buf, []byte(name))
	}
	return ethcrypto.Keccak256Hash(buf)
}

// messageBinds reports whether the signed message contains the digest.
func messageBinds(message string, digest common.Hash) bool {
	return strings.Contains(strings.ToLower(message), strings.ToLower(digest.Hex()))
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendBytes(buf, b []byte) []byte {
	buf = appendUint64(buf, uint64(len(b)))
	return append(buf, b...)
}
