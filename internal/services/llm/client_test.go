package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func completionPayload(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{
				"finish_reason": "stop",
				"message": map[string]any{
					"content": content,
				},
			},
		},
	}
}

func TestClientHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected auth header %q", got)
		}
		_ = json.NewEncoder(w).Encode(completionPayload(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
	err := client.HealthCheck(context.Background())
	if err == nil {
		t.Fatal("expected health check to fail")
	}
	if kind := Classify(err); kind != FailureAuth {
		t.Fatalf("expected auth failure kind, got %q", kind)
	}
}

func TestClientGenerateSendsPromptsAndStripsFence(t *testing.T) {
	var captured chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(completionPayload("```json\n{\"updates\":[]}\n```"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model", Title: "Loreweave"})
	content, err := client.Generate(context.Background(), "system rules", "user content")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Content != "user content" {
		t.Fatalf("unexpected request messages: %+v", captured.Messages)
	}
	if captured.ResponseFormat["type"] != "json_object" {
		t.Fatalf("expected json response format, got %v", captured.ResponseFormat)
	}
	var parsed struct {
		Updates []any `json:"updates"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
}

func TestClientReportsRefusal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "content_filter",
					"message":       map[string]any{"content": "", "refusal": "cannot help with that"},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"}, WithRetryMaxAttempts(1))
	_, err := client.Generate(context.Background(), "system", "user")
	var empty *emptyContentError
	if !errors.As(err, &empty) {
		t.Fatalf("expected empty content error, got %v", err)
	}
	if empty.Refusal != "cannot help with that" || empty.FinishReason != "content_filter" {
		t.Fatalf("unexpected refusal details: %+v", empty)
	}
	if Classify(err) != FailureMalformed {
		t.Fatalf("expected malformed kind, got %q", Classify(err))
	}
}

func TestClientAcceptsStreamingShapedReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"delta":{"content":"{\"entries\":[]}"}}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"}, WithRetryMaxAttempts(1))
	content, err := client.Generate(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if content != `{"entries":[]}` {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		_ = json.NewEncoder(w).Encode(completionPayload(`{"ok":true}`))
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	if _, err := client.Generate(context.Background(), "system", "user"); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientQuotaExhaustionClassifiesAsQuota(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"insufficient credits for key sk-secret"}`))
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(2),
	)
	_, err := client.Generate(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected error")
	}
	kind := Classify(err)
	if kind != FailureQuota {
		t.Fatalf("expected quota kind, got %q", kind)
	}
	if strings.Contains(kind.Describe(), "sk-secret") {
		t.Fatalf("description leaked provider text: %q", kind.Describe())
	}
}

func TestClientRetriesOnEmptyContentThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		content := ""
		if calls >= 3 {
			content = `{"relationships":[]}`
		}
		_ = json.NewEncoder(w).Encode(completionPayload(content))
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(5),
	)
	content, err := client.Generate(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if content != `{"relationships":[]}` {
		t.Fatalf("unexpected content %q", content)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", Model: "demo"})
	if _, err := client.Generate(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected missing key error")
	}
}

func TestOpenAIClientGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["model"] != "gpt-test" {
			t.Errorf("unexpected model %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"ok\":true}"}}]}`)
	}))
	defer server.Close()

	gen := New(Config{Provider: ProviderOpenAI, APIKey: "test", BaseURL: server.URL + "/v1/", Model: "gpt-test"})
	if _, ok := gen.(*OpenAIClient); !ok {
		t.Fatalf("expected OpenAIClient, got %T", gen)
	}
	content, err := gen.Generate(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if content != `{"ok":true}` {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), FailureTimeout},
		{"malformed", fmt.Errorf("parse: %w", ErrMalformedOutput), FailureMalformed},
		{"server", &httpStatusError{StatusCode: http.StatusBadGateway}, FailureProvider},
		{"gateway timeout", &httpStatusError{StatusCode: http.StatusGatewayTimeout}, FailureTimeout},
		{"empty", &emptyContentError{Op: "x"}, FailureMalformed},
		{"other", errors.New("boom"), FailureProvider},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("%s: Classify = %q, want %q", tc.name, got, tc.want)
		}
	}
	if Classify(nil) != "" {
		t.Fatal("expected empty kind for nil")
	}
}

func TestDecodeLLMJSONExtractsEmbeddedObject(t *testing.T) {
	var parsed struct {
		Entries []string `json:"entries"`
	}
	if err := DecodeLLMJSON("Here you go:\n{\"entries\":[\"a\"]}\nThanks", &parsed); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if len(parsed.Entries) != 1 {
		t.Fatalf("unexpected entries %v", parsed.Entries)
	}
	if err := DecodeLLMJSON("no json at all", &parsed); err == nil {
		t.Fatal("expected decode error")
	}
}
