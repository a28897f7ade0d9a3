package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestProbeHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()
	addr := strings.TrimPrefix(srv.URL, "http://")

	if !probeHealth(context.Background(), addr) {
		t.Error("expected the test server to be reachable")
	}
	if probeHealth(context.Background(), "") {
		t.Error("empty address reported reachable")
	}

	srv.Close()
	if probeHealth(context.Background(), addr) {
		t.Error("closed server reported reachable")
	}
}
