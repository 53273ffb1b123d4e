// Package phash computes fixed-configuration perceptual fingerprints and
// compares them by Hamming distance.
package phash

import (
	"encoding/binary"
	"fmt"
	"image"
	"math/bits"

	"github.com/corona10/goimagehash"
	"github.com/sourcegraph/conc/panics"

	"github.com/franz/bgdb/internal/util"
)

// Algorithm selects the fingerprint strategy
type Algorithm string

const (
	// Gradient compares adjacent pixels (difference hash)
	Gradient Algorithm = "gradient"
	// Mean compares each pixel against the block average (average hash)
	Mean Algorithm = "mean"
	// DCT thresholds low DCT frequencies (perception hash)
	DCT Algorithm = "dct"
)

const (
	DefaultAlgorithm = Gradient
	DefaultSize      = 16
)

// Hasher computes fingerprints of size*size bits with one algorithm.
// Fingerprints from different Hashers are not comparable.
type Hasher struct {
	algo Algorithm
	size int
}

// New validates the configuration and returns a Hasher.
// size must be a power of two between 8 and 64.
func New(algo string, size int) (*Hasher, error) {
	a := Algorithm(algo)
	switch a {
	case Gradient, Mean, DCT:
	default:
		return nil, fmt.Errorf("%w: unknown hash algorithm %q", util.ErrInvalidConfig, algo)
	}
	if size < 8 || size > 64 || size&(size-1) != 0 {
		return nil, fmt.Errorf("%w: hash size %d must be a power of two in [8, 64]", util.ErrInvalidConfig, size)
	}
	return &Hasher{algo: a, size: size}, nil
}

// Default returns the 256-bit gradient hasher
func Default() *Hasher {
	return &Hasher{algo: DefaultAlgorithm, size: DefaultSize}
}

// Name identifies the configuration, e.g. "gradient-16". It is what gets
// persisted next to the fingerprints.
func (h *Hasher) Name() string {
	return fmt.Sprintf("%s-%d", h.algo, h.size)
}

// Bits is the fingerprint length in bits
func (h *Hasher) Bits() int {
	return h.size * h.size
}

// Len is the fingerprint length in bytes
func (h *Hasher) Len() int {
	return h.Bits() / 8
}

// Hash fingerprints img. A panic inside the hash library comes back as an
// error wrapping util.ErrDecode.
func (h *Hasher) Hash(img image.Image) (out []byte, err error) {
	recovered := panics.Try(func() {
		out, err = h.hash(img)
	})
	if recovered != nil {
		return nil, fmt.Errorf("%w: %s hash panic: %v", util.ErrDecode, h.algo, recovered.Value)
	}
	return out, err
}

func (h *Hasher) hash(img image.Image) ([]byte, error) {
	var (
		ext *goimagehash.ExtImageHash
		err error
	)
	switch h.algo {
	case Gradient:
		ext, err = goimagehash.ExtDifferenceHash(img, h.size, h.size)
	case Mean:
		ext, err = goimagehash.ExtAverageHash(img, h.size, h.size)
	case DCT:
		ext, err = goimagehash.ExtPerceptionHash(img, h.size, h.size)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s hash: %v", util.ErrDecode, h.algo, err)
	}

	words := ext.GetHash()
	out := make([]byte, 8*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint64(out[i*8:], w)
	}
	return out, nil
}

// Distance is the number of differing bits between a and b
func Distance(a, b []byte) (int, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d bytes", util.ErrHashLengthMismatch, len(a), len(b))
	}
	d := 0
	for i := range a {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	return d, nil
}

// Similarity maps a distance onto [0, 1], 1 being identical
func Similarity(distance, bitLen int) float64 {
	if bitLen <= 0 {
		return 0
	}
	return 1 - float64(distance)/float64(bitLen)
}
