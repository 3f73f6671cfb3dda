package uuid

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid"
)

// alphabet without look-alike characters, ids end up in urls and log lines
const alphabet = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// Generator entity id generator
type Generator interface {
	Generate() (string, error)
}

// NanoIDGenerator Generator implementation using NanoID
type NanoIDGenerator struct {
	Length int
}

var _ Generator = &NanoIDGenerator{}

// NewNanoIDGenerator create a new `NanoIDGenerator` instance
func NewNanoIDGenerator(length int) (*NanoIDGenerator, error) {
	if length < 8 {
		return nil, fmt.Errorf("id length must be at least 8, got %d", length)
	}
	return &NanoIDGenerator{Length: length}, nil
}

// Generate generate a random id of Length characters
func (ns *NanoIDGenerator) Generate() (string, error) {
	return gonanoid.Generate(alphabet, ns.Length)
}
