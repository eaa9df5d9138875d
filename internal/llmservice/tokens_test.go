package llmservice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	est := NewEstimator("cl100k_base", 4096)

	assert.Equal(t, 0, est.Estimate(""))

	n := est.Estimate("The quick brown fox jumps over the lazy dog.")
	assert.Greater(t, n, 5)
	assert.Less(t, n, 20)
}

func TestEstimateUnknownEncodingFallsBack(t *testing.T) {
	est := NewEstimator("no-such-encoding", 4096)

	// length/4 heuristic when the encoding cannot load
	assert.Equal(t, 2, est.Estimate("abcdefgh"))
}
