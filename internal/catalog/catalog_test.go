package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Len(t, c.All(), 41)
	assert.Len(t, c.Categories(), 8)
	assert.Equal(t, []string{"헤클", "길가", "란슬", "가재"}, c.Tier(TierS))
	assert.True(t, c.IsDetection("룰러"))
	assert.True(t, c.IsCloaking("서문"))
	assert.Equal(t, "어새신", c.CategoryOf("서문"))

	tier, ok := c.TierOf("바토리")
	require.True(t, ok)
	assert.Equal(t, TierB, tier)
}

func TestLookupNormalizesHangul(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	decomposed := norm.NFD.String("세이버")
	require.NotEqual(t, "세이버", decomposed)

	got, ok := c.Lookup("  " + decomposed + " ")
	require.True(t, ok)
	assert.Equal(t, "세이버", got)
}

func TestParseRejectsBadReferences(t *testing.T) {
	data := []byte(`
categories:
  - name: one
    characters: [a, b, a]
tiers:
  S: [zzz]
detection: [b]
cloaking: [nope]
`)
	_, err := Parse(data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCharacter))
	assert.Contains(t, err.Error(), "listed twice")
	assert.Contains(t, err.Error(), "nope")
}
