package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiChat(t *testing.T) {
	var gotPath string
	var gotReq geminiGenerateReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": "hello "}, {"text": "world"}},
				}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "test-key", "gemini-2.5-flash-lite")
	reply, err := p.Chat(context.Background(), []Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "prev"},
		{Role: "user", Content: "again"},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "hello world" {
		t.Fatalf("reply = %q", reply)
	}
	if !strings.Contains(gotPath, "models/gemini-2.5-flash-lite:generateContent") {
		t.Fatalf("path = %q", gotPath)
	}
	if len(gotReq.Contents) != 3 {
		t.Fatalf("sent %d contents, want 3", len(gotReq.Contents))
	}
	if gotReq.Contents[1].Role != "model" {
		t.Fatalf("assistant role not mapped to model: %q", gotReq.Contents[1].Role)
	}
	if len(gotReq.SafetySettings) != 4 {
		t.Fatalf("expected 4 safety settings, got %d", len(gotReq.SafetySettings))
	}
}

func TestGeminiChatHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "test-key", "")
	_, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("err = %v, want quota message", err)
	}
}

func TestGeminiChatRequiresAPIKey(t *testing.T) {
	p := NewGeminiProvider("http://localhost:0", "", "")
	if _, err := p.Chat(context.Background(), nil); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestGeminiStreamChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "alt=sse") {
			t.Errorf("expected sse query, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		chunk := func(text string) string {
			b, _ := json.Marshal(map[string]any{
				"candidates": []map[string]any{
					{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
				},
			})
			return "data: " + string(b) + "\n\n"
		}
		_, _ = w.Write([]byte(chunk("foo") + chunk("bar")))
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "test-key", "")
	chunks, errs := p.StreamChat(context.Background(), []Message{{Role: "user", Content: "hi"}})

	var got []string
	for c := range chunks {
		got = append(got, c)
	}
	if err := <-errs; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(got) != 2 || got[0] != "foo" || got[1] != "bar" {
		t.Fatalf("fragments = %v", got)
	}

	// Streaming must not reconfigure the shared client; a concurrent Chat
	// call relies on its timeout.
	if p.Client.Timeout == 0 {
		t.Fatal("StreamChat cleared the shared client timeout")
	}
}
