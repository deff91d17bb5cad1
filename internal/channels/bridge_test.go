package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBridgeClientInjectAndEvents(t *testing.T) {
	b := NewBridgeClient("", "")
	events, err := b.Events(context.Background())
	if err != nil {
		t.Fatalf("Events: %v", err)
	}

	if !b.Inject(InboundEvent{AccountID: "acct", Sender: "0xabc", ConversationID: "c", Content: "hi", IsDirect: true}) {
		t.Fatal("Inject returned false on open client")
	}
	select {
	case evt := <-events:
		if evt.Content != "hi" {
			t.Errorf("Content = %q", evt.Content)
		}
		if evt.ReceivedAt.IsZero() {
			t.Error("Inject must stamp ReceivedAt")
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if b.Inject(InboundEvent{}) {
		t.Error("Inject must refuse after Close")
	}
	if _, ok := <-events; ok {
		t.Error("events channel must be closed")
	}
}

func TestBridgeClientSendText(t *testing.T) {
	var got bridgeSendRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
	}))
	defer ts.Close()

	b := NewBridgeClient(ts.URL, "tok")
	if err := b.SendText(context.Background(), "convo-1", "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if got.ConversationID != "convo-1" || got.Text != "hello" {
		t.Errorf("request = %+v", got)
	}
}

func TestBridgeClientPing(t *testing.T) {
	var got bridgeHealthRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
	}))
	defer ts.Close()

	b := NewBridgeClient(ts.URL, "tok")
	if err := b.Ping(context.Background(), "dev", "0xabc"); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if got.Env != "dev" || got.Address != "0xabc" {
		t.Errorf("request = %+v", got)
	}
}

func TestBridgeDialer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	conn, err := BridgeDialer{URL: ts.URL}.Dial(context.Background(), "production", "0xabc")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "identity not registered", http.StatusServiceUnavailable)
	}))
	defer down.Close()
	if _, err := (BridgeDialer{URL: down.URL}).Dial(context.Background(), "production", "0xabc"); err == nil {
		t.Fatal("expected dial error from unhealthy binding")
	}

	if _, err := (BridgeDialer{}).Dial(context.Background(), "production", "0xabc"); err == nil {
		t.Fatal("expected dial error without a bridge url")
	}
}

func TestBridgeClientSendFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "conversation unknown", http.StatusNotFound)
	}))
	defer ts.Close()

	b := NewBridgeClient(ts.URL, "")
	if err := b.SendText(context.Background(), "c", "x"); err == nil {
		t.Fatal("expected send error")
	}

	unconfigured := NewBridgeClient("", "")
	if err := unconfigured.SendText(context.Background(), "c", "x"); err == nil {
		t.Fatal("expected error without send url")
	}
}
