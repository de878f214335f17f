// Package dto holds the identifier and reference types shared by the
// registry stores.
package dto

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// IDLength is the byte length of registry, accumulator and revocation ids.
const IDLength = 32

// Controller identifies a party that can submit registry mutations,
// typically a DID.
type Controller string

// RegistryID is the opaque 32-byte identifier of a revocation registry.
// It is chosen by the creator, not derived.
type RegistryID [IDLength]byte

// AccumulatorID is the opaque 32-byte identifier of an accumulator.
type AccumulatorID [IDLength]byte

// RevocationID is the 32-byte member id of a revocation registry.
type RevocationID [IDLength]byte

// StorageRef addresses a versioned entry in the parameter/key store.
type StorageRef struct {
	Owner   Controller `json:"owner"`
	Counter uint32     `json:"counter"`
}

// String returns the reference as owner#counter.
func (r StorageRef) String() string {
	return fmt.Sprintf("%s#%d", r.Owner, r.Counter)
}

// ParseRegistryID parses a 32-byte registry id from a hex string with
// an optional 0x prefix.
func ParseRegistryID(s string) (RegistryID, error) {
	var id RegistryID
	b, err := parseIDBytes(s)
	if err != nil {
		return id, fmt.Errorf("invalid registry id: %w", err)
	}
	copy(id[:], b)
	return id, nil
}

// ParseAccumulatorID parses a 32-byte accumulator id from a hex string with
// an optional 0x prefix.
func ParseAccumulatorID(s string) (AccumulatorID, error) {
	var id AccumulatorID
	b, err := parseIDBytes(s)
	if err != nil {
		return id, fmt.Errorf("invalid accumulator id: %w", err)
	}
	copy(id[:], b)
	return id, nil
}

func parseIDBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hex: %w", err)
	}
	if len(b) != IDLength {
		return nil, fmt.Errorf("expected %d bytes, got %d", IDLength, len(b))
	}
	return b, nil
}

func (id RegistryID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id AccumulatorID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id RevocationID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}
