package llmservice

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/rs/zerolog/log"

	"github.com/tmc/langchaingo/llms"
)

// BPE tables come from the offline loader, no network fetch on first use.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Estimator counts prompt tokens so oversized prompts show up in the logs
// before a backend truncates them silently. When the encoding cannot load
// it falls back to a bytes/4 estimate.
type Estimator struct {
	encoding string
	budget   int

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewEstimator(encoding string, budget int) *Estimator {
	return &Estimator{encoding: encoding, budget: budget}
}

func (e *Estimator) load() {
	enc, err := tiktoken.GetEncoding(e.encoding)
	if err != nil {
		log.Warn().Err(err).Str("encoding", e.encoding).Msg("token encoding unavailable, estimating by length")
		return
	}
	e.enc = enc
}

// Estimate returns the token count of text.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	e.once.Do(e.load)
	if e.enc == nil {
		return len(text) / 4
	}
	return len(e.enc.Encode(text, nil, nil))
}

// LogPromptSize records the total estimate for a message batch and warns
// when it exceeds the configured budget.
func (e *Estimator) LogPromptSize(backend Backend, messages []llms.MessageContent) {
	total := 0
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				total += e.Estimate(text.Text)
			}
		}
	}

	evt := log.Debug()
	if e.budget > 0 && total > e.budget {
		evt = log.Warn()
	}
	evt.Str("backend", string(backend)).Int("tokens", total).Int("budget", e.budget).Msg("prompt size")
}
