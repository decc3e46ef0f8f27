package accessor

import (
	"encoding/json"
	"fmt"

	"github.com/0xsequence/ethkit/go-ethereum/common/hexutil"
	ethcrypto "github.com/0xsequence/ethkit/go-ethereum/crypto"
	"github.com/gowebpki/jcs"
)

// SignResponse signs the request payload with the accessor private
// key. The payload is canonicalized (RFC 8785) before hashing so the
// signature is stable across JSON re-encodings.
func SignResponse(privateKey string, payload any) (string, error) {
	privBytes, err := hexutil.Decode(privateKey)
	if err != nil {
		return "", fmt.Errorf("decode private key: %w", err)
	}
	key, err := ethcrypto.ToECDSA(privBytes)
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}

	sig, err := ethcrypto.Sign(ethcrypto.Keccak256(canonical), key)
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}
	return hexutil.Encode(sig), nil
}
