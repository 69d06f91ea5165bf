package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

func (h Hash) String() string {
	return string(h)
}

func (h Hash) IsEmpty() bool {
	return h == ""
}

// Domain-specific hash types
type (
	ParamsHash    Hash
	StageListHash Hash
	ChannelsHash  Hash
)

func NewParamsHash(data []byte) ParamsHash       { return ParamsHash(NewHash(data)) }
func NewStageListHash(data []byte) StageListHash { return StageListHash(NewHash(data)) }

func (h ParamsHash) String() string    { return Hash(h).String() }
func (h StageListHash) String() string { return Hash(h).String() }
func (h ChannelsHash) String() string  { return Hash(h).String() }

// ComputeParamsHash hashes a parameter map in key order.
func ComputeParamsHash(params map[string]interface{}) ParamsHash {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		data.WriteString("=")
		data.WriteString(fmt.Sprintf("%v", params[key]))
		data.WriteString(";")
	}
	return NewParamsHash([]byte(data.String()))
}

// ComputeChannelsHash hashes an ordered channel layout. Order matters.
func ComputeChannelsHash(names []string) ChannelsHash {
	return ChannelsHash(NewHash([]byte(strings.Join(names, "\x00"))))
}
