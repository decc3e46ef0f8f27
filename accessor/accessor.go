// Package accessor owns the cryptographic material registered with the
// trust network for each onboarded identity: the accessor key pair,
// the derived secret submitted with accepted requests, and response
// signatures.
package accessor

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/0xsequence/ethkit/go-ethereum/common/hexutil"
	ethcrypto "github.com/0xsequence/ethkit/go-ethereum/crypto"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"
)

// Material is everything provisioned for one identity during
// onboarding. PrivateKey and Secret never leave the agent; the rest is
// registered upstream.
type Material struct {
	AccessorID      string `json:"accessor_id"`
	AccessorGroupID string `json:"accessor_group_id"`
	PublicKey       string `json:"public_key"`
	PrivateKey      string `json:"private_key"`
	Secret          string `json:"secret"`
}

// Generate provisions a fresh secp256k1 accessor key pair for the
// subject, along with its upstream accessor ids.
func Generate(sid string) (Material, error) {
	key, err := ecdsa.GenerateKey(secp256k1.S256(), rand.Reader)
	if err != nil {
		return Material{}, fmt.Errorf("generate accessor key: %w", err)
	}

	return Material{
		AccessorID:      "accessor-" + uuid.NewString(),
		AccessorGroupID: "accessor-group-" + uuid.NewString(),
		PublicKey:       hexutil.Encode(ethcrypto.FromECDSAPub(&key.PublicKey)),
		PrivateKey:      hexutil.Encode(ethcrypto.FromECDSA(key)),
	}, nil
}

// DeriveSecret computes the accessor secret bound to the identity and
// its private key. The same inputs always derive the same secret.
func DeriveSecret(namespace, identifier, privateKey string) (string, error) {
	privBytes, err := hexutil.Decode(privateKey)
	if err != nil {
		return "", fmt.Errorf("decode private key: %w", err)
	}
	secret := ethcrypto.Keccak256([]byte(namespace+":"+identifier), privBytes)
	return hexutil.Encode(secret), nil
}
