package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_SHA256Hex(t *testing.T) {
	a := SHA256Hex("192.168.1.10")
	b := SHA256Hex("192.168.1.10")

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, SHA256Hex("192.168.1.11"))
}

func Test_TrimAndBound(t *testing.T) {
	assert.Equal(t, "abc", TrimAndBound("  abc  ", 64))
	assert.Equal(t, "ab", TrimAndBound("abcd", 2))
	assert.Equal(t, "", TrimAndBound("   ", 10))
	assert.Equal(t, "abcd", TrimAndBound("abcd", 0))
}
