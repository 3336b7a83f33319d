package ton

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/xssnick/tonutils-go/address"
)

const (
	// TonProofPrefix: фиксированный префикс для TON Proof по спецификации TON Connect.
	// https://docs.ton.org/develop/dapps/ton-connect/sign#checking-ton_proof-on-server-side
	TonProofPrefix = "ton-proof-item-v2/"

	// TonConnectPrefix: префикс перед SHA256 хешем сообщения.
	TonConnectPrefix = "ton-connect"

	// MaxProofAge: максимальный возраст proof (защита от replay).
	MaxProofAge = 5 * time.Minute
)

// ProofData содержит данные из TON Connect ton_proof.
type ProofData struct {
	Address   string `json:"address"`    // raw: "0:abc..."
	Network   string `json:"network"`    // "-239" = mainnet, "-3" = testnet
	PublicKey string `json:"public_key"` // hex
	Proof     Proof  `json:"proof"`
}

type Proof struct {
	Timestamp int64       `json:"timestamp"`
	Domain    ProofDomain `json:"domain"`
	Payload   string      `json:"payload"`   // наш nonce
	Signature string      `json:"signature"` // base64, hex тоже принимается
}

type ProofDomain struct {
	LengthBytes int    `json:"lengthBytes"`
	Value       string `json:"value"`
}

// NetworkID maps the configured network name to the TON Connect chain id.
func NetworkID(network string) string {
	if network == "mainnet" {
		return "-239"
	}
	return "-3"
}

// VerifyProof проверяет TON Proof подпись для адреса addr.
//
// 1. message = "ton-proof-item-v2/" ++ workchain(4 bytes) ++ address_hash(32 bytes)
//              ++ domain_len(4 bytes LE) ++ domain ++ timestamp(8 bytes LE) ++ payload
// 2. signature_message = 0xffff ++ "ton-connect" ++ sha256(message)
// 3. Verify Ed25519(public_key, sha256(signature_message), signature)
func VerifyProof(pubKeyHex string, addr *address.Address, proof Proof, allowedDomains []string) error {
	proofTime := time.Unix(proof.Timestamp, 0)
	if time.Since(proofTime) > MaxProofAge {
		return fmt.Errorf("proof expired: %s old", time.Since(proofTime).Round(time.Second))
	}
	if proofTime.After(time.Now().Add(1 * time.Minute)) {
		return fmt.Errorf("proof timestamp is in the future")
	}

	if !isDomainAllowed(proof.Domain.Value, allowedDomains) {
		return fmt.Errorf("domain %q not in allowed list", proof.Domain.Value)
	}

	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key size: %d", len(pubKey))
	}

	sig, err := decodeSignature(proof.Signature)
	if err != nil {
		return err
	}

	if !ed25519.Verify(pubKey, ProofHash(addr.Workchain(), addr.Data(), proof), sig) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// ProofHash returns sha256(0xffff ++ "ton-connect" ++ sha256(message)).
func ProofHash(workchain int32, addrHash []byte, proof Proof) []byte {
	message := []byte(TonProofPrefix)
	message = binary.BigEndian.AppendUint32(message, uint32(workchain))
	message = append(message, addrHash...)
	message = binary.LittleEndian.AppendUint32(message, uint32(proof.Domain.LengthBytes))
	message = append(message, proof.Domain.Value...)
	message = binary.LittleEndian.AppendUint64(message, uint64(proof.Timestamp))
	message = append(message, proof.Payload...)

	msgHash := sha256.Sum256(message)

	signatureMessage := []byte{0xff, 0xff}
	signatureMessage = append(signatureMessage, TonConnectPrefix...)
	signatureMessage = append(signatureMessage, msgHash[:]...)

	final := sha256.Sum256(signatureMessage)
	return final[:]
}

func decodeSignature(s string) ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(sig) != ed25519.SignatureSize {
		if raw, hexErr := hex.DecodeString(s); hexErr == nil {
			sig, err = raw, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("invalid signature size: %d", len(sig))
	}
	return sig, nil
}

func isDomainAllowed(domain string, allowed []string) bool {
	if len(allowed) == 0 {
		return true // если список пуст, разрешаем всё (dev mode)
	}
	for _, d := range allowed {
		if d == domain {
			return true
		}
	}
	return false
}
