// Package randx derives independent, reproducible random streams from one
// base seed.
package randx

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// Purpose separates the streams a single trial consumes, so adding draws to
// one concern never shifts the values another concern sees.
type Purpose uint64

const (
	Draw Purpose = iota + 1
	Resample
	Impute
)

// NewSeed returns a seed read from the operating system's CSPRNG. It never
// returns 0, which callers reserve for "pick a seed for me".
func NewSeed() (uint64, error) {
	var b [8]byte
	for {
		if _, err := crand.Read(b[:]); err != nil {
			return 0, fmt.Errorf("read random seed: %w", err)
		}
		if s := binary.LittleEndian.Uint64(b[:]); s != 0 {
			return s, nil
		}
	}
}

// Source returns the PCG source for trial index under seed and purpose. The
// same triple always yields the same sequence.
func Source(seed uint64, index int, p Purpose) *rand.PCG {
	hi := mix(seed ^ mix(uint64(index)+1))
	lo := mix(hi ^ mix(uint64(p)<<32|0x9e3779b9))
	return rand.NewPCG(hi, lo)
}

// Stream is Source wrapped in a *rand.Rand.
func Stream(seed uint64, index int, p Purpose) *rand.Rand {
	return rand.New(Source(seed, index, p))
}

// mix is the splitmix64 finalizer.
func mix(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
