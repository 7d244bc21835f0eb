package wallet

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
)

const (
	// TronAddressPrefix is the mainnet version byte of a Tron address.
	TronAddressPrefix byte = 0x41

	solanaPubKeyLen = 32
	addressHashLen  = 20
	checksumLen     = 4
)

var (
	ErrInvalidAddress  = errors.New("invalid address")
	ErrInvalidChecksum = errors.New("invalid address checksum")
)

// EncodeSolanaAddress Solana 地址就是公钥的 Base58 编码
func EncodeSolanaAddress(pub []byte) (string, error) {
	if len(pub) != solanaPubKeyLen {
		return "", fmt.Errorf("%w: solana public key must be %d bytes, got %d", ErrInvalidAddress, solanaPubKeyLen, len(pub))
	}
	return base58.Encode(pub), nil
}

func DecodeSolanaAddress(addr string) ([]byte, error) {
	pub, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(pub) != solanaPubKeyLen {
		return nil, fmt.Errorf("%w: solana address decodes to %d bytes", ErrInvalidAddress, len(pub))
	}
	return pub, nil
}

// PublicKeyHash returns the last 20 bytes of Keccak-256 over an uncompressed
// secp256k1 public key without its 0x04 format byte.
func PublicKeyHash(uncompressed []byte) ([]byte, error) {
	if len(uncompressed) != 65 || uncompressed[0] != 0x04 {
		return nil, fmt.Errorf("%w: expected 65-byte uncompressed public key", ErrInvalidAddress)
	}
	h := crypto.Keccak256(uncompressed[1:])
	return h[len(h)-addressHashLen:], nil
}

// EncodeEthereumAddress renders the 20-byte hash as 0x-prefixed hex with EIP-55 casing.
func EncodeEthereumAddress(hash []byte) (string, error) {
	if len(hash) != addressHashLen {
		return "", fmt.Errorf("%w: ethereum address hash must be %d bytes", ErrInvalidAddress, addressHashLen)
	}
	return common.BytesToAddress(hash).Hex(), nil
}

func DecodeEthereumAddress(addr string) ([]byte, error) {
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return nil, fmt.Errorf("%w: missing 0x prefix", ErrInvalidAddress)
	}
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
	}
	return common.HexToAddress(addr).Bytes(), nil
}

// NormalizeEthereumAddress returns the EIP-55 form, or the input unchanged if it is not an address.
func NormalizeEthereumAddress(addr string) string {
	if !common.IsHexAddress(addr) {
		return addr
	}
	return common.HexToAddress(addr).Hex()
}

// EncodeTronAddress 生成 Base58Check(0x41 || hash) 地址.
// The checksum is double SHA-256 (see tronChecksum), which is what Tron nodes
// verify; a Keccak-based checksum produces addresses the network rejects.
func EncodeTronAddress(hash []byte) (string, error) {
	if len(hash) != addressHashLen {
		return "", fmt.Errorf("%w: tron address hash must be %d bytes", ErrInvalidAddress, addressHashLen)
	}
	payload := make([]byte, 0, 1+addressHashLen+checksumLen)
	payload = append(payload, TronAddressPrefix)
	payload = append(payload, hash...)
	payload = append(payload, tronChecksum(payload)...)
	return base58.Encode(payload), nil
}

// DecodeTronAddress verifies prefix and checksum and returns the 20-byte hash.
func DecodeTronAddress(addr string) ([]byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != 1+addressHashLen+checksumLen {
		return nil, fmt.Errorf("%w: tron address decodes to %d bytes", ErrInvalidAddress, len(raw))
	}
	payload, sum := raw[:1+addressHashLen], raw[1+addressHashLen:]
	if payload[0] != TronAddressPrefix {
		return nil, fmt.Errorf("%w: unexpected tron prefix 0x%02x", ErrInvalidAddress, payload[0])
	}
	if !bytes.Equal(sum, tronChecksum(payload)) {
		return nil, ErrInvalidChecksum
	}
	return payload[1:], nil
}

// TronHexAddress returns the 21-byte hex form (41...) used by some TronGrid endpoints.
func TronHexAddress(addr string) (string, error) {
	hash, err := DecodeTronAddress(addr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02x%x", TronAddressPrefix, hash), nil
}

// checksum is the first 4 bytes of SHA-256(SHA-256(payload)), as verified by Tron nodes.
func tronChecksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:checksumLen]
}
