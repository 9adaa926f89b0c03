package parser

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/courseflow/courseflow/pkg/observability/logger"
)

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}
func (nopLogger) With(args ...any) logger.Logger {
	return nopLogger{}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:           server.URL,
		RequestTimeout:    2 * time.Second,
		RequestsPerSecond: 1000,
	}, nopLogger{})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	return client
}

func TestParseFileSendsMultipartAndReturnsPayload(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/parse/file" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart failed: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file missing: %v", err)
		} else {
			defer file.Close()
			if header.Filename != "syllabus.pdf" {
				t.Errorf("unexpected filename %q", header.Filename)
			}
			raw, _ := io.ReadAll(file)
			if string(raw) != "%PDF-1.4" {
				t.Errorf("unexpected file bytes %q", raw)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"weeks":[{"title":"Week 1"}]}`))
	}))

	payload, err := client.ParseFile(context.Background(), "syllabus.pdf", []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("parse file failed: %v", err)
	}
	if !strings.Contains(string(payload), "Week 1") {
		t.Fatalf("unexpected payload: %s", payload)
	}
}

func TestParseBodyPostsJSON(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/parse/body" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		raw, _ := io.ReadAll(r.Body)
		if string(raw) != `{"raw":"Week 1: Intro"}` {
			t.Errorf("unexpected body %s", raw)
		}
		_, _ = w.Write([]byte(`{}`))
	}))

	if _, err := client.ParseBody(context.Background(), json.RawMessage(`{"raw":"Week 1: Intro"}`)); err != nil {
		t.Fatalf("parse body failed: %v", err)
	}
}

func TestClientClassifiesResponses(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		rejection bool
	}{
		{"bad request", http.StatusBadRequest, true},
		{"unprocessable", http.StatusUnprocessableEntity, true},
		{"request timeout", http.StatusRequestTimeout, false},
		{"too many requests", http.StatusTooManyRequests, false},
		{"server error", http.StatusInternalServerError, false},
		{"bad gateway", http.StatusBadGateway, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))

			_, err := client.ParseBody(context.Background(), json.RawMessage(`{}`))
			if err == nil {
				t.Fatal("expected error")
			}
			var statusErr *StatusError
			if !errors.As(err, &statusErr) || statusErr.Code != tc.status {
				t.Fatalf("expected StatusError %d, got %v", tc.status, err)
			}
			if IsRejection(err) != tc.rejection {
				t.Fatalf("IsRejection = %v, want %v for %d", IsRejection(err), tc.rejection, tc.status)
			}
		})
	}
}

func TestNetworkFailureIsNotRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client, err := NewClient(Config{BaseURL: server.URL, RequestsPerSecond: 1000}, nopLogger{})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	server.Close()

	_, err = client.ParseBody(context.Background(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected network error")
	}
	if IsRejection(err) {
		t.Fatal("network failure must classify as retryable")
	}
}

func TestClientRejectsMalformedResponse(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))

	if _, err := client.ParseBody(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for malformed response")
	}
}

func TestClientRejectsEmptyInput(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	if _, err := client.ParseFile(context.Background(), "x.pdf", nil); err == nil {
		t.Fatal("expected error for empty document")
	}
	if _, err := client.ParseBody(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty content")
	}
}
