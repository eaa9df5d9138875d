package llmservice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackend(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Backend
	}{
		{"Phi", BackendPhi},
		{"Llama 3.1", BackendLlama31},
		{"Mixtral", BackendMixtral},
		{"  Phi  ", BackendPhi},
	} {
		got, err := ParseBackend(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestParseBackendUnknown(t *testing.T) {
	for _, in := range []string{"", "phi", "GPT-4", "Llama 3"} {
		_, err := ParseBackend(in)
		require.Error(t, err, in)
		assert.ErrorIs(t, err, ErrUnknownBackend)
	}
}

func TestParseBackendErrorNamesChoices(t *testing.T) {
	_, err := ParseBackend("Falcon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Phi")
	assert.Contains(t, err.Error(), "Llama 3.1")
	assert.Contains(t, err.Error(), "Mixtral")
}
