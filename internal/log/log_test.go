package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Component: ComponentLedger, Format: "json", Output: &buf})
	l.InfoContext(context.Background(), "hello", FieldUserID, 7)

	out := buf.String()
	assert.Contains(t, out, `"component":"ledger"`)
	assert.Contains(t, out, `"user_id":7`)

	buf.Reset()
	l.WithComponent(ComponentAuth).Debug("switched")
	assert.Contains(t, buf.String(), `"component":"auth"`)
}

func TestMiddlewareChain(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: slog.LevelInfo, Output: &buf})

	var got *Logger
	h := Middleware(base)(ComponentMiddleware(ComponentRPC)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
			got.Info("inside")
		}))))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, ComponentRPC, got.Component())
	assert.Contains(t, buf.String(), "request_id=req-1")
}

func TestFromContextFallsBack(t *testing.T) {
	l := FromContext(context.Background())
	assert.Equal(t, "unknown", l.Component())
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Output: &buf}))

	sl.LogCall(context.Background(), "setBudget", 3, "rejected", 2*time.Millisecond, errors.New("nope"))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "procedure=setBudget")

	buf.Reset()
	r := httptest.NewRequest(http.MethodPost, "/transactions", nil)
	sl.LogHTTPEnd(context.Background(), r, 500, 12, "1.2.3.4")
	assert.Contains(t, buf.String(), "level=ERROR")
}
