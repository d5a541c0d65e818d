package id

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestNew(t *testing.T) {
	u := New()
	assert.Regexp(t, uuidPattern, u)

	// Two calls must differ.
	assert.NotEqual(t, u, New())
}
