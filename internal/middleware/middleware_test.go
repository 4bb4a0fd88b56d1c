package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/splitwiser.pay.v1.PaymentService/GetSplit", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if called {
		t.Error("preflight should not reach the wrapped handler")
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got == "" {
		t.Error("missing Access-Control-Allow-Headers")
	}
}

func TestLoggingRecordsStatus(t *testing.T) {
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(*statusRecorder); !ok {
			t.Errorf("handler got %T, want *statusRecorder", w)
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cashfree-webhook", nil))

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", w.Code)
	}
}

func TestGetCaller(t *testing.T) {
	if got := GetCaller(context.Background()); got != "" {
		t.Errorf("GetCaller on empty context = %q", got)
	}
	ctx := context.WithValue(context.Background(), CallerKey, "app-server")
	if got := GetCaller(ctx); got != "app-server" {
		t.Errorf("GetCaller = %q, want app-server", got)
	}
}
