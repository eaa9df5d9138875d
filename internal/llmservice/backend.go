package llmservice

import (
	"errors"
	"fmt"
	"strings"
)

// Backend identifies one of the supported inference models. The set is
// closed: identifiers outside it are rejected, never substituted.
type Backend string

const (
	BackendPhi     Backend = "Phi"
	BackendLlama31 Backend = "Llama 3.1"
	BackendMixtral Backend = "Mixtral"
)

var ErrUnknownBackend = errors.New("unknown llm choice")

// ParseBackend maps a request identifier onto the backend set.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.TrimSpace(s)); b {
	case BackendPhi, BackendLlama31, BackendMixtral:
		return b, nil
	}
	return "", fmt.Errorf("%w: %q (valid choices: %s, %s, %s)",
		ErrUnknownBackend, s, BackendPhi, BackendLlama31, BackendMixtral)
}
