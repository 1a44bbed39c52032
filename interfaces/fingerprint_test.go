package interfaces

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppFingerprint(t *testing.T) {
	fp, ok := ParseAppFingerprint("a|b|c|d")
	require.True(t, ok)
	assert.Equal(t, AppFingerprint{Key: "a", Tag: "b", MrEnclave: "c", Entrypoint: "d"}, fp)

	_, ok = ParseAppFingerprint("a|b|c")
	assert.False(t, ok)
	_, ok = ParseAppFingerprint("")
	assert.False(t, ok)
}

func TestParseServiceFingerprint(t *testing.T) {
	fp, ok := ParseServiceFingerprint("key|tag|mrenclave")
	require.True(t, ok)
	assert.Equal(t, "mrenclave", fp.MrEnclave)

	// Extra fields are ignored.
	fp, ok = ParseServiceFingerprint("key|tag|mrenclave|extra")
	require.True(t, ok)
	assert.Equal(t, "key", fp.Key)

	// A trailing separator does not count as a field.
	_, ok = ParseServiceFingerprint("a|b|")
	assert.False(t, ok)
	_, ok = ParseServiceFingerprint("a|b")
	assert.False(t, ok)
}

func TestParseDatasetFingerprint(t *testing.T) {
	fp, ok := ParseDatasetFingerprint("k|t")
	require.True(t, ok)
	assert.Equal(t, DatasetFingerprint{Key: "k", Tag: "t"}, fp)

	_, ok = ParseDatasetFingerprint("k")
	assert.False(t, ok)
	_, ok = ParseDatasetFingerprint("")
	assert.False(t, ok)
}
