package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Role is an opaque 32-byte identifier derived from a human-readable label.
// The derivation right-pads the label bytes with zeroes, so ids stay stable
// across deployments and readable in hex dumps.
type Role [32]byte

// The two roles the ledger recognizes out of the box. Nothing stops an
// administrator from granting arbitrary roles; only RoleTeacher gates
// behavior.
var (
	RoleTeacher = NewRole("TEACHER_ROLE")
	RoleStudent = NewRole("STUDENT_ROLE")
)

// NewRole derives a role id from a label. Labels longer than 32 bytes are
// truncated.
func NewRole(label string) Role {
	var r Role
	copy(r[:], label)
	return r
}

// ParseRole accepts either a 0x-prefixed 64-digit hex id or a plain label.
func ParseRole(s string) (Role, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		raw, err := hex.DecodeString(s[2:])
		if err != nil {
			return Role{}, fmt.Errorf("parse role %q: %w", s, err)
		}
		if len(raw) != 32 {
			return Role{}, fmt.Errorf("parse role %q: want 32 bytes, got %d", s, len(raw))
		}
		var r Role
		copy(r[:], raw)
		return r, nil
	}
	if s == "" {
		return Role{}, fmt.Errorf("parse role: empty label")
	}
	return NewRole(s), nil
}

func (r Role) String() string {
	return "0x" + hex.EncodeToString(r[:])
}

// Label recovers the original label for ids that were derived from one.
func (r Role) Label() string {
	return strings.TrimRight(string(r[:]), "\x00")
}

// Address identifies an account on the settlement bank. The ledger treats it
// as an opaque non-empty string; wallets and signatures are out of scope.
type Address string

// Internal accounts the ledger moves funds through. They are ordinary bank
// accounts, just never used as callers.
const (
	EscrowAccount   Address = "ledger:escrow"
	TreasuryAccount Address = "ledger:treasury"
)
