// Package eid generates short random names that are also valid SQL identifiers.
package eid

import (
	"crypto/rand"
	"encoding/binary"
	"strings"

	"github.com/teris-io/shortid"
)

// Alphabet is the shortid alphabet. shortid needs 64 symbols and only 63
// are identifier-safe, so '-' is mapped to '_' on output.
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ_-"

var idGenerator *shortid.Shortid

func init() {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	seed := binary.LittleEndian.Uint64(buf)
	idGenerator = shortid.MustNew(0, Alphabet, seed)
}

// New returns a fresh id made of letters, digits and underscores.
func New() string {
	id, _ := idGenerator.Generate()
	return strings.ReplaceAll(id, "-", "_")
}

// Prefixed returns prefix + "_" + New().
func Prefixed(prefix string) string {
	return prefix + "_" + New()
}
