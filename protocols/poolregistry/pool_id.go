package poolregistry

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Specialization describes how a pool's vault accounting is laid out.
type Specialization uint16

const (
	GeneralSpecialization Specialization = iota
	MinimalSwapInfoSpecialization
	TwoTokenSpecialization
)

func (s Specialization) String() string {
	switch s {
	case GeneralSpecialization:
		return "general"
	case MinimalSwapInfoSpecialization:
		return "minimal-swap-info"
	case TwoTokenSpecialization:
		return "two-token"
	default:
		return fmt.Sprintf("specialization(%d)", uint16(s))
	}
}

// PoolID is the 32-byte identifier a vault assigns to a registered pool.
//
// Layout:
//
//	[0..19]  = pool contract address
//	[20..21] = specialization (big-endian uint16)
//	[22..31] = registration nonce (big-endian uint80)
//
// The pool contract address is also the address of the pool's share token.
type PoolID [32]byte

// NewPoolID packs a pool address, specialization and nonce into a PoolID.
// Only the low 64 bits of the 80-bit nonce field are used.
func NewPoolID(pool common.Address, spec Specialization, nonce uint64) PoolID {
	var id PoolID
	copy(id[:20], pool[:])
	binary.BigEndian.PutUint16(id[20:22], uint16(spec))
	binary.BigEndian.PutUint64(id[24:32], nonce)
	return id
}

// Address returns the pool contract address embedded in the id.
func (p PoolID) Address() common.Address {
	return common.BytesToAddress(p[:20])
}

// Specialization returns the specialization embedded in the id.
func (p PoolID) Specialization() Specialization {
	return Specialization(binary.BigEndian.Uint16(p[20:22]))
}

// Nonce returns the low 64 bits of the registration nonce.
func (p PoolID) Nonce() uint64 {
	return binary.BigEndian.Uint64(p[24:32])
}

// IsZero reports whether the id is all zero bytes.
func (p PoolID) IsZero() bool {
	return p == PoolID{}
}

// Bytes returns the raw underlying byte slice.
func (p PoolID) Bytes() []byte {
	return p[:]
}

// String returns the 0x-prefixed hex form of the id.
func (p PoolID) String() string {
	return "0x" + hex.EncodeToString(p[:])
}

// MarshalJSON serializes the id as a hex string.
func (p PoolID) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON parses a hex string into the id.
func (p *PoolID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := ParsePoolID(s)
	if err != nil {
		return err
	}
	*p = id
	return nil
}

// MarshalText lets PoolID be used as a YAML scalar and a JSON map key.
func (p PoolID) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (p *PoolID) UnmarshalText(text []byte) error {
	id, err := ParsePoolID(string(text))
	if err != nil {
		return err
	}
	*p = id
	return nil
}

// ParsePoolID decodes exactly 32 bytes of hex, with or without a 0x prefix.
//
// Unlike an address, a pool id is never left-padded: a short input is
// rejected rather than guessed at.
func ParsePoolID(s string) (PoolID, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return PoolID{}, fmt.Errorf("pool id: %w", err)
	}
	if len(b) != len(PoolID{}) {
		return PoolID{}, errors.New("pool id: must be exactly 32 bytes")
	}
	return PoolID(b), nil
}
