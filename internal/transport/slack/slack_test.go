package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"eventbell/internal/transport"
)

func TestConfigured(t *testing.T) {
	t.Parallel()
	if err := New(Config{Token: "xoxb", ChannelID: "C1"}).Configured(); err != nil {
		t.Fatalf("Configured: %v", err)
	}
	for _, cfg := range []Config{{ChannelID: "C1"}, {Token: "xoxb"}, {Token: "  ", ChannelID: "C1"}} {
		if err := New(cfg).Configured(); !errors.Is(err, transport.ErrNotConfigured) {
			t.Fatalf("Configured(%+v) = %v, want ErrNotConfigured", cfg, err)
		}
	}
}

func TestDeliver(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    bool
		wantReason string
	}{
		{name: "ok", status: 200, body: `{"ok":true,"channel":"C1","ts":"1.2"}`},
		{name: "api error", status: 200, body: `{"ok":false,"error":"channel_not_found"}`, wantErr: true, wantReason: "channel_not_found"},
		{name: "http error", status: 500, body: `oops`, wantErr: true, wantReason: "Internal Server Error"},
		{name: "garbage", status: 200, body: `<html>`, wantErr: true, wantReason: "invalid response"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got postMessage
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != postPath {
					t.Errorf("path = %s", r.URL.Path)
				}
				if auth := r.Header.Get("Authorization"); auth != "Bearer xoxb" {
					t.Errorf("Authorization = %q", auth)
				}
				_ = json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := New(Config{Token: "xoxb", ChannelID: "C1", BaseURL: srv.URL}).Deliver(context.Background(), "hi")
			if got.Channel != "C1" || got.Text != "hi" {
				t.Fatalf("unexpected request body: %+v", got)
			}
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Deliver: %v", err)
				}
				return
			}
			var de *transport.DeliveryError
			if !errors.As(err, &de) {
				t.Fatalf("expected DeliveryError, got %v", err)
			}
			if de.Reason != tt.wantReason || de.Status != tt.status {
				t.Fatalf("got status=%d reason=%q", de.Status, de.Reason)
			}
		})
	}
}
