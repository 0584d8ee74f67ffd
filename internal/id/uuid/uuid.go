// Package uuid provides ID generation helpers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUID v7 identifiers for trackers and
// contributors.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// TrackerID returns a UUID7 used to tag a tracker's events.
func (Generator) TrackerID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate uuid7: %w", err)
	}
	return id, nil
}

// ContributorID returns prefix joined to a UUID7 string. An empty prefix
// yields the bare UUID.
func (g Generator) ContributorID(prefix string) (string, error) {
	id, err := g.TrackerID()
	if err != nil {
		return "", err
	}
	if prefix == "" {
		return id.String(), nil
	}
	return prefix + "-" + id.String(), nil
}
