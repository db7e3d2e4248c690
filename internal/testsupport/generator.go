package testsupport

import (
	"context"
	"sync"
)

// GenerateCall records one Generate invocation.
type GenerateCall struct {
	System string
	User   string
}

// StubGenerator is a scripted llm.Generator. Handler decides each response;
// a nil Handler returns "{}".
type StubGenerator struct {
	Handler func(ctx context.Context, system, user string) (string, error)

	mu    sync.Mutex
	calls []GenerateCall
}

// Generate records the call and delegates to Handler.
func (g *StubGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, GenerateCall{System: system, User: user})
	handler := g.Handler
	g.mu.Unlock()

	if handler == nil {
		return "{}", nil
	}
	return handler(ctx, system, user)
}

// Calls returns a copy of the recorded calls.
func (g *StubGenerator) Calls() []GenerateCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GenerateCall, len(g.calls))
	copy(out, g.calls)
	return out
}
