package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasAnyTag(t *testing.T) {
	m := Memory{Tags: []string{"infra", "oncall"}}

	assert.True(t, m.HasAnyTag([]string{"oncall"}))
	assert.True(t, m.HasAnyTag([]string{"nope", "infra"}))
	assert.False(t, m.HasAnyTag([]string{"nope"}))
	assert.False(t, m.HasAnyTag(nil), "empty filter matches nothing")
}

func TestDecayExempt(t *testing.T) {
	assert.False(t, (&Memory{Tags: []string{"infra"}}).DecayExempt())
	assert.True(t, (&Memory{Tags: []string{TagEvergreen}}).DecayExempt())
	assert.True(t, (&Memory{Tags: []string{"x", TagNeverForget}}).DecayExempt())
}

func TestIsValidCategory(t *testing.T) {
	for _, c := range Categories {
		assert.True(t, IsValidCategory(c))
	}
	assert.False(t, IsValidCategory("diary"))
	assert.False(t, IsValidCategory(""))
}
