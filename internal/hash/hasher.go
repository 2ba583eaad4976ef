package hash

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	stdhash "hash"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/minio/highwayhash"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
)

const bufferSize = 32 * 1024 // 32KB buffer for streaming

// Size is the length of a Fingerprint in bytes.
const Size = 16

// Fingerprint is a 128-bit digest over a file's entire content.
type Fingerprint [Size]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := ParseFingerprint(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFingerprint decodes the hex form produced by Fingerprint.String.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fp, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	if len(raw) != Size {
		return fp, fmt.Errorf("invalid fingerprint %q: expected %d bytes, got %d", s, Size, len(raw))
	}
	copy(fp[:], raw)
	return fp, nil
}

// Algorithm names a content fingerprint function.
type Algorithm string

const (
	BLAKE3   Algorithm = "blake3"
	MD5      Algorithm = "md5"
	Highway  Algorithm = "highway"
	SHAKE256 Algorithm = "shake256"
)

// DefaultAlgorithm is used when no algorithm is configured.
const DefaultAlgorithm = BLAKE3

// highwayKey is fixed so fingerprints are comparable across runs.
var highwayKey = []byte("tidy-go highwayhash content key!")

// Algorithms returns the supported algorithm names, sorted.
func Algorithms() []string {
	names := []string{string(BLAKE3), string(MD5), string(Highway), string(SHAKE256)}
	sort.Strings(names)
	return names
}

// ParseAlgorithm resolves a case-insensitive algorithm name. An empty name
// selects DefaultAlgorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultAlgorithm, nil
	}
	for _, known := range Algorithms() {
		if name == known {
			return Algorithm(name), nil
		}
	}
	return "", fmt.Errorf("unknown hash algorithm %q (supported: %s)", name, strings.Join(Algorithms(), ", "))
}

type summer interface {
	io.Writer
	sum() Fingerprint
}

type hashSummer struct {
	stdhash.Hash
}

func (s hashSummer) sum() Fingerprint {
	var fp Fingerprint
	// blake3 yields 32 bytes; keep the leading 128 bits
	copy(fp[:], s.Sum(nil))
	return fp
}

type shakeSummer struct {
	sha3.ShakeHash
}

func (s shakeSummer) sum() Fingerprint {
	var fp Fingerprint
	_, _ = s.Read(fp[:])
	return fp
}

func newSummer(algo Algorithm) (summer, error) {
	switch algo {
	case BLAKE3, "":
		return hashSummer{blake3.New()}, nil
	case MD5:
		return hashSummer{md5.New()}, nil
	case Highway:
		h, err := highwayhash.New128(highwayKey)
		if err != nil {
			return nil, fmt.Errorf("failed to init highwayhash: %w", err)
		}
		return hashSummer{h}, nil
	case SHAKE256:
		return shakeSummer{sha3.NewShake256()}, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", algo)
	}
}

// HashFile reads the whole file at path once and returns its fingerprint.
func HashFile(path string, algo Algorithm) (Fingerprint, error) {
	h, err := newSummer(algo)
	if err != nil {
		return Fingerprint{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	buf := make([]byte, bufferSize)
	if _, err := io.CopyBuffer(h, file, buf); err != nil {
		return Fingerprint{}, fmt.Errorf("failed to read file: %w", err)
	}

	return h.sum(), nil
}

// HashBytes fingerprints an in-memory buffer.
func HashBytes(data []byte, algo Algorithm) (Fingerprint, error) {
	h, err := newSummer(algo)
	if err != nil {
		return Fingerprint{}, err
	}
	_, _ = h.Write(data)
	return h.sum(), nil
}

// XXHashFunc is a custom hash function adapter for go-merkletree
// It converts []byte input to xxHash []byte output
func XXHashFunc(data []byte) ([]byte, error) {
	sum := xxhash.Sum64(data)

	// Convert uint64 to []byte in big-endian format
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, sum)
	return buf, nil
}
