package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// DigestBits is the bit length of every supported digest.
const DigestBits = 256

const (
	AlgSHA256    = "sha256"
	AlgSHA3256   = "sha3-256"
	AlgKeccak256 = "keccak256"
)

var (
	ErrInvalidHex           = errors.New("invalid hexadecimal string")
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")
)

// Digest is a 256-bit hash value.
type Digest [32]byte

// Hex renders the digest as 64 lowercase hex characters.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// Bits renders the digest as 256 '0'/'1' characters, most significant bit first.
func (d Digest) Bits() string {
	bits, _ := HexToBinary(d.Hex())
	return bits
}

// Int interprets the digest as a big-endian unsigned integer.
func (d Digest) Int() *uint256.Int {
	return new(uint256.Int).SetBytes32(d[:])
}

// LeadingZeroBits counts zero bits before the first set bit.
func (d Digest) LeadingZeroBits() int {
	return DigestBits - d.Int().BitLen()
}

func (d Digest) String() string { return d.Hex() }

// ParseDigest decodes a 64 character hex string.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if len(s) != 2*len(d) {
		return d, fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidHex, 2*len(d), len(s))
	}
	if s != strings.ToLower(s) {
		return d, fmt.Errorf("%w: digest must be lowercase", ErrInvalidHex)
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return d, nil
}

// Hasher computes a Digest over arbitrary bytes.
type Hasher interface {
	Sum(data []byte) Digest
	Name() string
}

type sha256Hasher struct{}

func (sha256Hasher) Sum(data []byte) Digest { return sha256.Sum256(data) }
func (sha256Hasher) Name() string           { return AlgSHA256 }

type sha3Hasher struct{}

func (sha3Hasher) Sum(data []byte) Digest { return sha3.Sum256(data) }
func (sha3Hasher) Name() string           { return AlgSHA3256 }

type keccakHasher struct{}

func (keccakHasher) Sum(data []byte) Digest { return Digest(ethcrypto.Keccak256Hash(data)) }
func (keccakHasher) Name() string           { return AlgKeccak256 }

// SHA256 is the default hasher.
var SHA256 Hasher = sha256Hasher{}

// NewHasher looks up a hasher by algorithm name. An empty name selects sha256.
func NewHasher(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", AlgSHA256:
		return sha256Hasher{}, nil
	case AlgSHA3256, "sha3":
		return sha3Hasher{}, nil
	case AlgKeccak256, "keccak":
		return keccakHasher{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
}

// SupportedAlgorithms lists the canonical algorithm names.
func SupportedAlgorithms() []string {
	return []string{AlgSHA256, AlgSHA3256, AlgKeccak256}
}

// Sum hashes data with h and returns the hex rendering together with the digest.
func Sum(h Hasher, data []byte) (string, Digest) {
	d := h.Sum(data)
	return d.Hex(), d
}
