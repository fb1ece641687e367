package httpmw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func serveRequestID(t *testing.T, inbound string) (ctxID, respID string) {
	t.Helper()
	h := RequestID("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestIDFromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if inbound != "" {
		r.Header.Set(DefaultRequestIDHeader, inbound)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return ctxID, rec.Header().Get(DefaultRequestIDHeader)
}

func TestRequestID_Generates(t *testing.T) {
	ctxID, respID := serveRequestID(t, "")
	if _, err := uuid.Parse(ctxID); err != nil {
		t.Fatalf("generated id %q is not a uuid: %v", ctxID, err)
	}
	if respID != ctxID {
		t.Fatalf("response id %q != context id %q", respID, ctxID)
	}
}

func TestRequestID_Propagates(t *testing.T) {
	ctxID, respID := serveRequestID(t, "edge-abc-123")
	if ctxID != "edge-abc-123" || respID != "edge-abc-123" {
		t.Fatalf("ids = %q/%q, want propagated", ctxID, respID)
	}
}

func TestRequestID_ReplacesInvalid(t *testing.T) {
	for _, bad := range []string{"has space", "new\nline", strings.Repeat("x", maxRequestIDLen+1)} {
		ctxID, _ := serveRequestID(t, bad)
		if ctxID == bad {
			t.Errorf("invalid id %q was propagated", bad)
		}
		if _, err := uuid.Parse(ctxID); err != nil {
			t.Errorf("replacement %q is not a uuid", ctxID)
		}
	}
}

func TestRequestIDFromContext_Missing(t *testing.T) {
	if RequestIDFromContext(t.Context()) != "" {
		t.Fatal("expected empty id")
	}
}
