package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm"
)

func testClient(url string) *Client {
	return New(Options{
		BaseURL:    url,
		ChatModel:  "llama3.1",
		EmbedModel: "nomic-embed-text",
		Policy:     llm.RetryPolicy{Timeout: time.Second, Attempts: 2},
	})
}

func TestComplete_ReturnsMessageContent(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(chatResponse{
			Message: ragModel.ChatMessage{Role: ragModel.RoleAssistant, Content: "Overtime requires approval."},
		})
	}))
	defer srv.Close()

	answer, err := testClient(srv.URL).Complete(context.Background(), []ragModel.ChatMessage{
		{Role: ragModel.RoleUser, Content: "What is the overtime policy?"},
	}, "")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if answer != "Overtime requires approval." {
		t.Errorf("answer = %q", answer)
	}
	if gotReq.Model != "llama3.1" {
		t.Errorf("default model not applied, got %q", gotReq.Model)
	}
	if gotReq.Stream {
		t.Error("streaming must be disabled")
	}
}

func TestComplete_ModelOverride(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(chatResponse{Message: ragModel.ChatMessage{Content: "ok"}})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Complete(context.Background(), []ragModel.ChatMessage{
		{Role: ragModel.RoleUser, Content: "hi"},
	}, "mistral")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if gotReq.Model != "mistral" {
		t.Errorf("model override not applied, got %q", gotReq.Model)
	}
}

func TestEmbed_OneVectorPerText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{float32(len(req.Prompt)), 0.5}})
	}))
	defer srv.Close()

	vectors, err := testClient(srv.URL).Embed(context.Background(), []string{"a", "bbb"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[0][0] != 1 || vectors[1][0] != 3 {
		t.Errorf("vectors not in input order: %v", vectors)
	}
}

func TestComplete_ServerDownReturnsUpstreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Complete(context.Background(), []ragModel.ChatMessage{
		{Role: ragModel.RoleUser, Content: "hi"},
	}, "")
	if !errors.Is(err, llm.ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestComplete_TimeoutsBoundedByRetryBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Outlive the client's per-attempt deadline, then return so Close can
		// drain the connection.
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	timeout := 50 * time.Millisecond
	c := New(Options{
		BaseURL:   srv.URL,
		ChatModel: "llama3.1",
		Policy:    llm.RetryPolicy{Timeout: timeout, Attempts: 2},
	})

	start := time.Now()
	_, err := c.Complete(context.Background(), []ragModel.ChatMessage{
		{Role: ragModel.RoleUser, Content: "hi"},
	}, "")
	elapsed := time.Since(start)

	if !errors.Is(err, llm.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if elapsed > 2*timeout+200*time.Millisecond {
		t.Errorf("call took %v, want bounded by twice the per-attempt timeout", elapsed)
	}
}
