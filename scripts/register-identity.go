//go:build ignore

// register-identity.go - Register an encrypted identity against a local server
//
// Seals the field values with the sealbox master key from the config file (so
// it only works against a sealbox-backed deployment), signs the request with
// the registrar key and posts it to the API.
//
// Usage:
//   go run scripts/register-identity.go -config config.yaml \
//     -registrar-key 0x<hex private key> \
//     -user-address 0x... \
//     -score 723 -firstname jane -lastname doe -birthdate 631152000

package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/cipherid/registry-middleware/pkg/auth"
	"github.com/cipherid/registry-middleware/pkg/config"
	"github.com/cipherid/registry-middleware/pkg/fhe"
	"github.com/cipherid/registry-middleware/pkg/fhe/sealbox"
	"github.com/cipherid/registry-middleware/pkg/identity"
	registryservice "github.com/cipherid/registry-middleware/pkg/registry/service"
)

func main() {
	var (
		configPath   = flag.String("config", "config.yaml", "Path to configuration file")
		apiURL       = flag.String("api", "http://localhost:8081/api/v1", "API base URL")
		registrarKey = flag.String("registrar-key", "", "Registrar private key (hex)")
		userAddress  = flag.String("user-address", "", "Address of the user to register")
		score        = flag.Uint64("score", 0, "Score value")
		firstname    = flag.String("firstname", "", "First name (max 32 bytes)")
		lastname     = flag.String("lastname", "", "Last name (max 32 bytes)")
		birthdate    = flag.Uint64("birthdate", 0, "Birthdate as unix timestamp")
	)
	flag.Parse()

	if *registrarKey == "" || *userAddress == "" {
		log.Fatal("both -registrar-key and -user-address are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	masterKey, err := cfg.FHE.MasterKeyBytes()
	if err != nil {
		log.Fatalf("failed to read master key: %v", err)
	}
	box, err := sealbox.New(masterKey)
	if err != nil {
		log.Fatalf("failed to create sealbox: %v", err)
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(*registrarKey, "0x"))
	if err != nil {
		log.Fatalf("invalid registrar key: %v", err)
	}
	registrar := ethcrypto.PubkeyToAddress(key.PublicKey)
	log.Printf("registrar address: %s", registrar.Hex())

	// Ask the mapping service for the user's id (issues one when missing).
	userID, err := issueUserID(*apiURL, *userAddress)
	if err != nil {
		log.Fatalf("failed to issue user id: %v", err)
	}
	log.Printf("user id: %d", userID)

	sealNumeric := func(value uint64, typ fhe.Type) registryservice.EncryptedInput {
		ciphertext, proof, err := box.SealNumericInput(value, registrar, typ)
		if err != nil {
			log.Fatalf("failed to seal input: %v", err)
		}
		return registryservice.EncryptedInput{Ciphertext: ciphertext, Proof: proof}
	}
	sealName := func(value string) registryservice.EncryptedInput {
		buf := make([]byte, 32)
		copy(buf, value)
		ciphertext, proof, err := box.SealInput(buf, registrar, fhe.TypeBytes32)
		if err != nil {
			log.Fatalf("failed to seal input: %v", err)
		}
		return registryservice.EncryptedInput{Ciphertext: ciphertext, Proof: proof}
	}

	scoreIn := sealNumeric(*score, fhe.TypeUint16)
	firstnameIn := sealName(*firstname)
	lastnameIn := sealName(*lastname)
	birthdateIn := sealNumeric(*birthdate, fhe.TypeUint32)

	// The server rejects messages that do not commit to the user id and the
	// exact ciphertexts.
	digest := registryservice.RegisterDigest(
		identity.UserID(userID), scoreIn, firstnameIn, lastnameIn, birthdateIn,
	)
	message := fmt.Sprintf("register identity for user %d %s", userID, digest.Hex())
	sig, err := ethcrypto.Sign(auth.HashEIP191(message).Bytes(), key)
	if err != nil {
		log.Fatalf("failed to sign request: %v", err)
	}

	encode := func(in registryservice.EncryptedInput) map[string]string {
		return map[string]string{
			"ciphertext": hexutil.Encode(in.Ciphertext),
			"proof":      hexutil.Encode(in.Proof),
		}
	}
	payload := map[string]any{
		"user_id":   userID,
		"score":     encode(scoreIn),
		"firstname": encode(firstnameIn),
		"lastname":  encode(lastnameIn),
		"birthdate": encode(birthdateIn),
		"message":   message,
		"signature": "0x" + hex.EncodeToString(sig),
	}

	body, _ := json.Marshal(payload)
	resp, err := http.Post(*apiURL+"/identities", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	log.Printf("status: %s", resp.Status)
	fmt.Println(string(out))
}

func issueUserID(apiURL, address string) (uint64, error) {
	body, _ := json.Marshal(map[string]string{"address": address})
	resp, err := http.Post(apiURL+"/idmapping", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("unexpected status %s: %s", resp.Status, raw)
	}
	var out struct {
		UserID uint64 `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.UserID, nil
}
