package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestLogging_CapturesStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}), log)

	req := httptest.NewRequest(http.MethodGet, "/brew", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("status=%d want=%d", rr.Code, http.StatusTeapot)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "http.request" {
		t.Fatalf("msg=%v want http.request", entry["msg"])
	}
	if got, ok := entry["status"].(float64); !ok || int(got) != http.StatusTeapot {
		t.Fatalf("logged status=%v want=%d", entry["status"], http.StatusTeapot)
	}
	if entry["path"] != "/brew" {
		t.Fatalf("logged path=%v want /brew", entry["path"])
	}
	if got, ok := entry["bytes"].(float64); !ok || int(got) != len("short and stout") {
		t.Fatalf("logged bytes=%v want %d", entry["bytes"], len("short and stout"))
	}
}

func TestWithRequestLogging_DefaultStatusOK(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("implicit 200"))
	}), log)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if got, ok := entry["status"].(float64); !ok || int(got) != http.StatusOK {
		t.Fatalf("logged status=%v want=%d", entry["status"], http.StatusOK)
	}
}

func TestLoggingResponseWriter_Unwrap(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	lrw := &loggingResponseWriter{ResponseWriter: rr}

	if lrw.Unwrap() != rr {
		t.Fatal("Unwrap must return the underlying ResponseWriter")
	}
}
