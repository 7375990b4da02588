package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestQueryTraceInfo_ParsesRegistryResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trace/info" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(TraceInfo{
			HeaderName:   "X-Trace-ID",
			IDFormat:     "otel-compatible (16 byte trace id, 8 byte span id, hex-encoded)",
			ExportActive: true,
		})
	}))
	defer srv.Close()

	info, err := queryTraceInfo(http.DefaultClient, srv.URL)
	if err != nil {
		t.Fatalf("queryTraceInfo returned error: %v", err)
	}
	if info.HeaderName != "X-Trace-ID" {
		t.Errorf("HeaderName = %q, want X-Trace-ID", info.HeaderName)
	}
	if !info.ExportActive {
		t.Error("expected ExportActive to be true")
	}
}

func TestQueryTraceInfo_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := queryTraceInfo(http.DefaultClient, srv.URL); err == nil {
		t.Error("expected error for non-200 response")
	}
}
