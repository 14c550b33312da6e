package httpauth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientSendsBearerToken(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	c := Client(" secret-token ", time.Second, srv.Client())
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()

	if got != "Bearer secret-token" {
		t.Fatalf("Authorization = %q, want %q", got, "Bearer secret-token")
	}
	if c.Timeout != time.Second {
		t.Fatalf("Timeout = %v, want 1s", c.Timeout)
	}
}
