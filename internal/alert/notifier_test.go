package alert

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgeandnode/graph-ixi/pkg/webhooks"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendDeliversSignedPayload(t *testing.T) {
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(webhooks.SignatureHeader)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(srv.URL, "secret", discardLogger())
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	if !n.Send(context.Background(), "hello") {
		t.Fatalf("expected delivery success")
	}

	var payload map[string]string
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["text"] != "hello" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if !webhooks.VerifySignature("secret", gotBody, gotSig) {
		t.Fatalf("signature did not verify: %q", gotSig)
	}
}

func TestSendNoSignatureWithoutSecret(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(webhooks.SignatureHeader)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	n, _ := NewWebhookNotifier(srv.URL, "", discardLogger())
	if !n.Send(context.Background(), "hello") {
		t.Fatalf("expected delivery success")
	}
	if gotSig != "" {
		t.Fatalf("unexpected signature header %q", gotSig)
	}
}

func TestSendReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n, _ := NewWebhookNotifier(srv.URL, "", discardLogger())
	if n.Send(context.Background(), "hello") {
		t.Fatalf("expected delivery failure on 500")
	}
}

func TestSendReportsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	n, _ := NewWebhookNotifier(srv.URL, "", discardLogger())
	if n.Send(context.Background(), "hello") {
		t.Fatalf("expected delivery failure when server is down")
	}
}

func TestNewWebhookNotifierRequiresURL(t *testing.T) {
	if _, err := NewWebhookNotifier("  ", "", discardLogger()); err == nil {
		t.Fatalf("expected error for empty webhook url")
	}
}
