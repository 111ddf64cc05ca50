package ai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func completionResponse(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(body)
}

func TestParseChatResult(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		reply string
		fact  string
	}{
		{
			name:  "plain json",
			in:    `{"reply": "Try the sneakers!", "new_fact": "likes shoes"}`,
			reply: "Try the sneakers!",
			fact:  "likes shoes",
		},
		{
			name:  "fenced json",
			in:    "```json\n{\"reply\": \"Hello!\", \"new_fact\": \"\"}\n```",
			reply: "Hello!",
			fact:  "",
		},
		{
			name:  "bare fence",
			in:    "```\n{\"reply\": \"Hi\", \"new_fact\": \" vegan \"}\n```",
			reply: "Hi",
			fact:  "vegan",
		},
		{
			name:  "plain text falls back to reply",
			in:    "Sorry, nothing in stock right now.",
			reply: "Sorry, nothing in stock right now.",
			fact:  "",
		},
		{
			name:  "json with empty reply treated as plain text",
			in:    `{"reply": "", "new_fact": "x"}`,
			reply: `{"reply": "", "new_fact": "x"}`,
			fact:  "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseChatResult(tc.in)
			if got.Reply != tc.reply || got.NewFact != tc.fact {
				t.Errorf("parseChatResult(%q) = (%q, %q), want (%q, %q)", tc.in, got.Reply, got.NewFact, tc.reply, tc.fact)
			}
		})
	}
}

func TestFallbackCaption(t *testing.T) {
	got := FallbackCaption(CaptionFields{Title: "Sneakers", Description: "Clean kicks"})
	want := "🔥 Sneakers\n🔌 Product: Sneakers\n📝 Details: Clean kicks"
	if got != want {
		t.Errorf("FallbackCaption = %q, want %q", got, want)
	}
}

func TestGenerateCaptionSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		w.Write([]byte(completionResponse("🔥 Sneakers\n🔌 Product: Sneakers")))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, APIKey: "test-key"}, testLogger(), nil)
	got, err := c.GenerateCaption(context.Background(), CaptionFields{Title: "Sneakers"}, "")
	if err != nil {
		t.Fatalf("GenerateCaption: %v", err)
	}
	if got != "🔥 Sneakers\n🔌 Product: Sneakers" {
		t.Errorf("caption = %q", got)
	}
}

func TestCompleteRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(completionResponse(`{"reply": "hi there", "new_fact": ""}`)))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL}, testLogger(), nil)
	result, err := c.SmartChat(context.Background(), "Ada", "", "hello", "Inventory:")
	if err != nil {
		t.Fatalf("SmartChat: %v", err)
	}
	if result.Reply != "hi there" {
		t.Errorf("reply = %q", result.Reply)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestCompleteDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL}, testLogger(), nil)
	_, err := c.SmartChat(context.Background(), "", "", "hello", "")
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("error = %v, want ErrStatus", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 for a non-retryable status", calls.Load())
	}
}
