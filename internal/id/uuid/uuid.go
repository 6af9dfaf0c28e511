// Package uuid generates run identifiers.
package uuid

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered run IDs.
type Generator struct {
	v7 func() (uuid.UUID, error)
	v4 func() (uuid.UUID, error)
}

// New creates a new Generator.
func New() *Generator {
	return &Generator{v7: uuid.NewV7, v4: uuid.NewRandom}
}

// NewID returns a UUIDv7 string, falling back to v4 when v7 generation fails.
func (g *Generator) NewID() (string, error) {
	id, err := g.v7()
	if err == nil {
		return id.String(), nil
	}
	id, err4 := g.v4()
	if err4 != nil {
		return "", fmt.Errorf("generate run id: %w", errors.Join(err, err4))
	}
	return id.String(), nil
}
