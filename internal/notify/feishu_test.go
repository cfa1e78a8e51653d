package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cjeanneret/PiLapse/internal/domain"
)

// hook records requests and answers with a fixed status and body.
type hook struct {
	status int
	body   string

	contentType string
	payloads    []map[string]any
}

func (h *hook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.contentType = r.Header.Get("Content-Type")
	data, _ := io.ReadAll(r.Body)
	var p map[string]any
	_ = json.Unmarshal(data, &p)
	h.payloads = append(h.payloads, p)
	w.WriteHeader(h.status)
	_, _ = io.WriteString(w, h.body)
}

func TestNotify_Payload(t *testing.T) {
	h := &hook{status: http.StatusOK, body: `{"code":0,"msg":"success"}`}
	srv := httptest.NewServer(h)
	defer srv.Close()

	f := NewFeishu(srv.URL, nil)
	if err := f.Notify(context.Background(), "upload succeeded: https://x/y.jpg"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	want := []map[string]any{{
		"msg_type": "text",
		"content":  map[string]any{"text": "upload succeeded: https://x/y.jpg"},
	}}
	if diff := cmp.Diff(want, h.payloads); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
	if h.contentType != "application/json" {
		t.Errorf("Content-Type = %q", h.contentType)
	}
}

func TestNotify_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "boom"},
		{"not found", http.StatusNotFound, ""},
		{"rejected by feishu", http.StatusOK, `{"code":19021,"msg":"sign match fail"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &hook{status: tt.status, body: tt.body}
			srv := httptest.NewServer(h)
			defer srv.Close()

			err := NewFeishu(srv.URL, nil).Notify(context.Background(), "m")
			if !domain.IsKind(err, domain.KindNotify) {
				t.Errorf("expected notify error, got %v", err)
			}
			if len(h.payloads) != 1 {
				t.Errorf("requests = %d, want exactly 1 (no retry)", len(h.payloads))
			}
		})
	}
}

func TestNotify_TruncatedReply(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   string
	}{
		{"error status", http.StatusBadGateway, "webhook returned 502"},
		{"success status", http.StatusOK, "read webhook reply"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Length", "100")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"code":`)
			}))
			defer srv.Close()

			err := NewFeishu(srv.URL, nil).Notify(context.Background(), "m")
			if !domain.IsKind(err, domain.KindNotify) {
				t.Fatalf("expected notify error, got %v", err)
			}
			if !errors.Is(err, io.ErrUnexpectedEOF) || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q with the read failure", err, tt.want)
			}
		})
	}
}

func TestNotify_NonJSONSuccess(t *testing.T) {
	srv := httptest.NewServer(&hook{status: http.StatusOK, body: "ok"})
	defer srv.Close()
	if err := NewFeishu(srv.URL, nil).Notify(context.Background(), "m"); err != nil {
		t.Errorf("2xx with a non-JSON body should succeed, got %v", err)
	}
}

func TestNotify_Unreachable(t *testing.T) {
	srv := httptest.NewServer(&hook{status: http.StatusOK})
	url := srv.URL
	srv.Close()

	if err := NewFeishu(url, nil).Notify(context.Background(), "m"); !domain.IsKind(err, domain.KindNotify) {
		t.Errorf("expected notify error, got %v", err)
	}
}

func TestNotify_Cancelled(t *testing.T) {
	h := &hook{status: http.StatusOK}
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewFeishu(srv.URL, nil).Notify(ctx, "m")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNotify_Disabled(t *testing.T) {
	f := NewFeishu("", nil)
	if f.Enabled() {
		t.Error("empty URL should disable notifications")
	}
	if err := f.Notify(context.Background(), "m"); err != nil {
		t.Errorf("disabled notifier returned %v", err)
	}
	if f.String() != "feishu(disabled)" {
		t.Errorf("String() = %q", f.String())
	}
}
