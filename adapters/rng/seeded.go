// Package rng hands out deterministic random streams.
package rng

import (
	"context"
	"math/rand"

	"eegprep/ports"
)

// SeededRNG implements ports.RNGPort. Streams with the same name and seed
// always produce the same sequence.
type SeededRNG struct{}

var _ ports.RNGPort = SeededRNG{}

// SeededStream creates a deterministic random number generator for a named operation
func (SeededRNG) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name != "" {
		seed = int64(hashString(name)) + seed
	}
	return rand.New(rand.NewSource(seed)), nil
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}
