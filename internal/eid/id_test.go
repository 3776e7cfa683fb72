package eid

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_IsIdentifierSafeAndUnique(t *testing.T) {
	ident := regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		id := New()
		assert.Regexp(t, ident, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestPrefixed(t *testing.T) {
	assert.Regexp(t, `^temp_user_[A-Za-z0-9_]+$`, Prefixed("temp_user"))
}
