package submission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSubmitChatData(t *testing.T) {
	var got chatDataRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat-data" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	err := c.SubmitChatData(context.Background(), "session_1_abc", map[string]any{"messageCount": 4})
	if err != nil {
		t.Fatalf("SubmitChatData: %v", err)
	}

	if got.Action != "submitChatData" {
		t.Errorf("action = %q", got.Action)
	}
	if got.SessionID != "session_1_abc" {
		t.Errorf("sessionId = %q", got.SessionID)
	}
}

func TestClientSubmitChatDataServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.SubmitChatData(context.Background(), "s", nil); err == nil {
		t.Fatal("expected error on 500")
	}
}
