package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// EntityKind classifies a trackable asset.
type EntityKind string

const (
	KindEmployee  EntityKind = "employee"
	KindEquipment EntityKind = "equipment"
)

// String returns the string representation of the kind.
func (k EntityKind) String() string {
	return string(k)
}

// IsValid checks whether the kind is a known value.
func (k EntityKind) IsValid() bool {
	switch k {
	case KindEmployee, KindEquipment:
		return true
	}
	return false
}

// ParseEntityKind converts user input to an EntityKind, accepting common
// short forms.
func ParseEntityKind(s string) (EntityKind, bool) {
	switch s {
	case "employee", "emp":
		return KindEmployee, true
	case "equipment", "eq":
		return KindEquipment, true
	}
	return "", false
}

// AssignmentRepair is the sentinel assignment for assets sent to the repair shop.
const AssignmentRepair Assignment = "repair"

// Assignment is the current owner of an entity: a project ID, the repair
// sentinel, or empty for unassigned. It marshals as JSON null when empty so
// clients see `null` rather than `""` for an unassigned asset.
type Assignment string

// String returns the string representation of the assignment.
func (a Assignment) String() string {
	return string(a)
}

// IsAssigned reports whether the entity currently has an owner
// (a project or the repair shop).
func (a Assignment) IsAssigned() bool {
	return a != ""
}

// IsRepair reports whether the assignment is the repair-shop sentinel.
func (a Assignment) IsRepair() bool {
	return a == AssignmentRepair
}

// MarshalJSON encodes an empty assignment as null.
func (a Assignment) MarshalJSON() ([]byte, error) {
	if a == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(a))
}

// UnmarshalJSON decodes null as the empty assignment.
func (a *Assignment) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*a = Assignment(s)
	return nil
}

// Status represents an entity's lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusArchived:
		return true
	}
	return false
}

// Entity is a trackable asset record. Its Assignment field is the single
// source of truth for ownership; Version increments on every write and backs
// the compare-and-swap discipline in the store.
type Entity struct {
	ID         string     `json:"id"`
	Kind       EntityKind `json:"kind"`
	Name       string     `json:"name"`
	Assignment Assignment `json:"assignment"`
	Status     Status     `json:"status"`
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// EntityFilter selects entities for listing.
type EntityFilter struct {
	Kind       []EntityKind
	Status     []Status
	Assignment *Assignment // nil = any; non-nil = exact match (empty = unassigned)
	Search     string
	Limit      int
	Offset     int
}
