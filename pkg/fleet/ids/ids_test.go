package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateShape(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)
	parts := strings.Split(id, "-")
	assert.Len(t, parts, 2)
	assert.Contains(t, adjectives, parts[0])
	assert.Contains(t, nouns, parts[1])
}

func TestWithSuffixDisambiguates(t *testing.T) {
	base := "calm-ember"
	a := WithSuffix(base)
	b := WithSuffix(base)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, base+"-"))
}

func TestSessionName(t *testing.T) {
	assert.Equal(t, "fm-foo", SessionName("fm-", "foo"))
}
