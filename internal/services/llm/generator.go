package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
)

// Supported providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
)

// Generator is the text generation boundary used by enrichment. Implementations
// return the raw model output; callers own parsing.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// New returns the Generator matching cfg.Provider. Options apply to the HTTP
// client only; the OpenAI SDK manages its own transport and retries.
func New(cfg Config, opts ...Option) Generator {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg)
	default:
		return NewClient(cfg, opts...)
	}
}

// FailureKind classifies a generation error without exposing provider text.
type FailureKind string

const (
	FailureTimeout   FailureKind = "timeout"
	FailureQuota     FailureKind = "quota"
	FailureAuth      FailureKind = "auth"
	FailureNetwork   FailureKind = "network"
	FailureMalformed FailureKind = "malformed"
	FailureProvider  FailureKind = "provider"
)

// ErrMalformedOutput marks model output that could not be decoded.
var ErrMalformedOutput = errors.New("malformed model output")

// Classify maps an error returned by a Generator (or by decoding its output)
// to a FailureKind.
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrMalformedOutput) {
		return FailureMalformed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}

	status := 0
	var statusErr *httpStatusError
	var apiErr *openai.Error
	switch {
	case errors.As(err, &statusErr):
		status = statusErr.StatusCode
	case errors.As(err, &apiErr):
		status = apiErr.StatusCode
	}
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusPaymentRequired:
		return FailureQuota
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailureAuth
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return FailureTimeout
	case status != 0:
		return FailureProvider
	}

	var emptyErr *emptyContentError
	if errors.As(err, &emptyErr) {
		return FailureMalformed
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return FailureTimeout
		}
		return FailureNetwork
	}
	return FailureProvider
}

// Describe returns a short user-safe phrase for a failure kind.
func (k FailureKind) Describe() string {
	switch k {
	case FailureTimeout:
		return "the language model timed out"
	case FailureQuota:
		return "the language model quota or rate limit was exceeded"
	case FailureAuth:
		return "the language model rejected the configured credentials"
	case FailureNetwork:
		return "the language model could not be reached"
	case FailureMalformed:
		return "the language model returned output that could not be understood"
	default:
		return "the language model returned an error"
	}
}
