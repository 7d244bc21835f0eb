package wallet

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"custody/internal/constant"
	"custody/internal/types"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	solanaCoinType   uint32 = 501
	ethereumCoinType uint32 = 60
	tronCoinType     uint32 = 195

	hardened = hdkeychain.HardenedKeyStart
)

var errIndexOutOfRange = errors.New("account index out of range")

// Keypair is a derived signing key. It must be wiped right after the signing call.
type Keypair struct {
	Network constant.Network
	Path    string
	Address string
	// ed25519: 64-byte private key; secp256k1: 32-byte scalar.
	PrivateKey []byte
}

// Wipe zeroes the private key in place.
func (k *Keypair) Wipe() {
	if k == nil {
		return
	}
	for i := range k.PrivateKey {
		k.PrivateKey[i] = 0
	}
	k.PrivateKey = nil
}

func (k *Keypair) String() string {
	return fmt.Sprintf("%s:%s(%s)", k.Network, k.Address, k.Path)
}

// ECDSA returns the secp256k1 key for Ethereum and Tron keypairs.
func (k *Keypair) ECDSA() (*ecdsa.PrivateKey, error) {
	if k.Network == constant.NetworkSolana {
		return nil, fmt.Errorf("%s keypair is not secp256k1", k.Network)
	}
	return crypto.ToECDSA(k.PrivateKey)
}

// KeyDeriver derives per-account keys from one master seed.
type KeyDeriver struct {
	seed []byte
}

// NewKeyDeriver takes ownership of seed.
func NewKeyDeriver(seed []byte) (*KeyDeriver, error) {
	if len(seed) < hdkeychain.MinSeedBytes || len(seed) > hdkeychain.MaxSeedBytes {
		return nil, &types.DerivationError{Network: "*", Err: hdkeychain.ErrInvalidSeedLen}
	}
	return &KeyDeriver{seed: seed}, nil
}

// NewKeyDeriverFromHex parses a hex encoded master seed.
func NewKeyDeriverFromHex(seedHex string) (*KeyDeriver, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(seedHex), "0x"))
	if err != nil {
		return nil, &types.DerivationError{Network: "*", Err: errors.New("master seed is not valid hex")}
	}
	return NewKeyDeriver(seed)
}

// DerivationPath returns the BIP44 path used for network and index.
func DerivationPath(network constant.Network, index uint32) (string, error) {
	switch network {
	case constant.NetworkSolana:
		return fmt.Sprintf("m/44'/%d'/%d'/0'", solanaCoinType, index), nil
	case constant.NetworkEthereum:
		return fmt.Sprintf("m/44'/%d'/0'/0/%d", ethereumCoinType, index), nil
	case constant.NetworkTron:
		return fmt.Sprintf("m/44'/%d'/0'/0/%d", tronCoinType, index), nil
	}
	return "", fmt.Errorf("unsupported network: %s", network)
}

// Derive produces the keypair for (network, index). Identical inputs always
// give an identical keypair.
func (d *KeyDeriver) Derive(network constant.Network, index uint32) (*Keypair, error) {
	path, err := DerivationPath(network, index)
	if err != nil {
		return nil, &types.DerivationError{Network: string(network), Err: err}
	}
	if index >= hardened {
		return nil, &types.DerivationError{Network: string(network), Path: path, Err: errIndexOutOfRange}
	}

	var kp *Keypair
	switch network {
	case constant.NetworkSolana:
		kp, err = d.deriveSolana(index)
	case constant.NetworkEthereum:
		kp, err = d.deriveSecp256k1(ethereumCoinType, index, EncodeEthereumAddress)
	case constant.NetworkTron:
		kp, err = d.deriveSecp256k1(tronCoinType, index, EncodeTronAddress)
	}
	if err != nil {
		return nil, &types.DerivationError{Network: string(network), Path: path, Err: err}
	}
	if kp == nil || len(kp.PrivateKey) == 0 {
		return nil, &types.DerivationError{Network: string(network), Path: path, Err: errors.New("no private key derived")}
	}
	kp.Network = network
	kp.Path = path
	return kp, nil
}

// Address derives the keypair, wipes it and returns only the address.
func (d *KeyDeriver) Address(network constant.Network, index uint32) (string, error) {
	kp, err := d.Derive(network, index)
	if err != nil {
		return "", err
	}
	defer kp.Wipe()
	return kp.Address, nil
}

// deriveSolana follows SLIP-10 for ed25519, hardened steps only.
func (d *KeyDeriver) deriveSolana(index uint32) (*Keypair, error) {
	key, chain := slip10Master(d.seed)
	for _, i := range []uint32{44, solanaCoinType, index, 0} {
		key, chain = slip10Child(key, chain, i+hardened)
	}
	defer zero(chain)
	defer zero(key)

	priv := ed25519.NewKeyFromSeed(key)
	addr, err := EncodeSolanaAddress(priv.Public().(ed25519.PublicKey))
	if err != nil {
		zero(priv)
		return nil, err
	}
	return &Keypair{Address: addr, PrivateKey: priv}, nil
}

func (d *KeyDeriver) deriveSecp256k1(coinType, index uint32, encode func([]byte) (string, error)) (*Keypair, error) {
	master, err := hdkeychain.NewMaster(d.seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	key := master
	for _, i := range []uint32{44 + hardened, coinType + hardened, 0 + hardened, 0, index} {
		child, err := key.Derive(i)
		key.Zero()
		if err != nil {
			return nil, err
		}
		key = child
	}
	defer key.Zero()

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	hash, err := PublicKeyHash(priv.PubKey().SerializeUncompressed())
	if err != nil {
		return nil, err
	}
	addr, err := encode(hash)
	if err != nil {
		return nil, err
	}
	return &Keypair{Address: addr, PrivateKey: priv.Serialize()}, nil
}

func slip10Master(seed []byte) (key, chain []byte) {
	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}

func slip10Child(key, chain []byte, index uint32) ([]byte, []byte) {
	data := make([]byte, 0, 37)
	data = append(data, 0x00)
	data = append(data, key...)
	data = binary.BigEndian.AppendUint32(data, index)

	mac := hmac.New(sha512.New, chain)
	mac.Write(data)
	sum := mac.Sum(nil)
	zero(data)
	zero(key)
	return sum[:32], sum[32:]
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
