package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthCheckerAggregates(t *testing.T) {
	h := NewHealthChecker()
	h.Register("redis", func(context.Context) error { return nil })
	h.Register("model", func(context.Context) error { return nil })

	if !h.Healthy(context.Background()) {
		t.Fatal("all-passing checker reported unhealthy")
	}

	h.Register("model", func(context.Context) error { return errors.New("api down") })
	results := h.Check(context.Background())
	if results["redis"].Healthy == false {
		t.Error("redis check affected by model failure")
	}
	if results["model"].Healthy || results["model"].Error == "" {
		t.Errorf("model status = %+v", results["model"])
	}
	if h.Healthy(context.Background()) {
		t.Error("failing probe did not flip the verdict")
	}
}

func TestHealthHandlerStatusCodes(t *testing.T) {
	h := NewHealthChecker()
	h.Register("ok", func(context.Context) error { return nil })

	rr := httptest.NewRecorder()
	h.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rr.Code)
	}

	h.Register("bad", func(context.Context) error { return errors.New("down") })
	rr = httptest.NewRecorder()
	h.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", rr.Code)
	}
}
