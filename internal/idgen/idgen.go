// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/jerrsapps1/opssync/internal/model"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// Per-kind ID prefixes.
const (
	EmployeePrefix  = "emp-"
	EquipmentPrefix = "eq-"
	ProjectPrefix   = "prj-"
)

// GenerateFor returns a new unique ID with the prefix for the given entity kind.
func GenerateFor(kind model.EntityKind) (string, error) {
	switch kind {
	case model.KindEmployee:
		return GenerateWithPrefix(EmployeePrefix)
	case model.KindEquipment:
		return GenerateWithPrefix(EquipmentPrefix)
	}
	return "", fmt.Errorf("idgen: unknown entity kind %q", kind)
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
