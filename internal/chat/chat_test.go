package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Open(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/conversations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("auth header = %q", got)
		}
		var req openRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(req.Participants) != 2 {
			t.Errorf("participants = %v", req.Participants)
		}
		_ = json.NewEncoder(w).Encode(openResponse{ConversationID: "conv-42"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	id, err := c.Open(context.Background(), []string{"guard-1", "student-9"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if id != "conv-42" {
		t.Errorf("conversation ID = %q, want conv-42", id)
	}
}

func TestClient_Open_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if _, err := c.Open(context.Background(), []string{"g"}); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestClient_Open_EmptyID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(openResponse{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if _, err := c.Open(context.Background(), []string{"g"}); err == nil {
		t.Fatal("expected error on empty conversation_id")
	}
}

func TestMemory_Open(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	id, err := m.Open(context.Background(), []string{"guard-1", "student-2"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if id == "" {
		t.Fatal("empty conversation ID")
	}
	got, ok := m.Participants(id)
	if !ok || len(got) != 2 {
		t.Errorf("Participants(%s) = %v, %v", id, got, ok)
	}

	id2, _ := m.Open(context.Background(), []string{"guard-1"})
	if id2 == id {
		t.Error("conversation IDs not unique")
	}
}
