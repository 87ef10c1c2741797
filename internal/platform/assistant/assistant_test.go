package assistant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseReply_Normal(t *testing.T) {
	reply := ParseReply("You should rest and stay hydrated.")
	if reply.Escalated {
		t.Error("expected no escalation")
	}
	if reply.Text != "You should rest and stay hydrated." {
		t.Errorf("unexpected text: %q", reply.Text)
	}
	if reply.Reason != "" {
		t.Errorf("expected empty reason, got %q", reply.Reason)
	}
}

func TestParseReply_Escalation(t *testing.T) {
	reply := ParseReply("ESCALATE: patient reports chest pain and shortness of breath")
	if !reply.Escalated {
		t.Fatal("expected escalation")
	}
	if reply.Reason != "patient reports chest pain and shortness of breath" {
		t.Errorf("unexpected reason: %q", reply.Reason)
	}
	if reply.Text != "" {
		t.Errorf("escalation replies must carry no patient-facing text, got %q", reply.Text)
	}
}

func TestParseReply_EscalationMarkerMidTextIgnored(t *testing.T) {
	raw := "Please note: ESCALATE: is the internal marker"
	reply := ParseReply(raw)
	if reply.Escalated {
		t.Error("marker not at start of reply must not escalate")
	}
	if reply.Text != raw {
		t.Errorf("expected text preserved, got %q", reply.Text)
	}
}

func TestParseReply_EmptyReason(t *testing.T) {
	reply := ParseReply("ESCALATE:")
	if !reply.Escalated {
		t.Fatal("expected escalation")
	}
	if reply.Reason != "" {
		t.Errorf("expected empty reason, got %q", reply.Reason)
	}
}

func TestOpenAIProvider_Chat(t *testing.T) {
	var gotAuth string
	var gotReq chatCompletionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "Stay hydrated."}},
			},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{
		BaseURL: srv.URL,
		APIKey:  "sk-test",
		Model:   "gpt-4o",
		Timeout: 5 * time.Second,
	})

	reply, err := p.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: SystemPrompt},
		{Role: RoleUser, Content: "I feel dizzy"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Stay hydrated." {
		t.Errorf("unexpected reply: %q", reply)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[1].Content != "I feel dizzy" {
		t.Errorf("unexpected messages payload: %+v", gotReq.Messages)
	}
	if gotReq.MaxTokens != maxReplyTokens {
		t.Errorf("expected max_tokens %d, got %d", maxReplyTokens, gotReq.MaxTokens)
	}
}

func TestOpenAIProvider_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Model: "gpt-4o"})
	_, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
	if !strings.Contains(err.Error(), "status 429") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Model: "gpt-4o"})
	_, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestOpenAIProvider_HonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts watching for client disconnect;
		// otherwise r.Context() is never cancelled and srv.Close hangs.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Model: "gpt-4o", Timeout: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Chat(ctx, []Message{{Role: RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected error when context deadline passes")
	}
}
