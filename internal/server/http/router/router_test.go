package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avoray/ordersync/internal/app"
	pkgAuth "github.com/avoray/ordersync/internal/pkg/auth"
	testhelpers "github.com/avoray/ordersync/internal/test"
)

type webhookStub struct{}

func (webhookStub) HandleGatewayEvent(ctx context.Context, key, fingerprint string, event app.GatewayEvent) ([]byte, bool, error) {
	return []byte(`{"outcome":"linked"}`), false, nil
}

type facadeStub struct {
	webhookStub
	*testhelpers.OrderFacadeStub
	*testhelpers.OpsFacadeStub
}

func newFacadeStub() facadeStub {
	return facadeStub{
		OrderFacadeStub: &testhelpers.OrderFacadeStub{},
		OpsFacadeStub:   &testhelpers.OpsFacadeStub{},
	}
}

func newTestRouter(t *testing.T) (*pkgAuth.HMACVerifier, http.Handler) {
	t.Helper()
	signer := pkgAuth.NewHMACVerifier("secret")
	apiKeys, err := pkgAuth.NewAPIKeyVerifier("admin-key")
	if err != nil {
		t.Fatalf("api key setup failed: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return signer, Setup(newFacadeStub(), signer, apiKeys, logger)
}

func TestRouterHealthz(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestRouterWebhookRoute(t *testing.T) {
	signer, router := newTestRouter(t)

	body := `{"provider_reference":"pay_abc","status":"success","amount":10}`
	req := httptest.NewRequest(http.MethodPost, "/api/gateway/webhook", strings.NewReader(body))
	req.Header.Set("X-Webhook-Signature", signer.Sign([]byte(body)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestRouterAdminRequiresAPIKey(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without key, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/orders/1", nil)
	req.Header.Set("X-API-Key", "admin-key")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 with key, got %d", w.Code)
	}
}

func TestRouterAdminCreateOrder(t *testing.T) {
	_, router := newTestRouter(t)

	body := `{"number":"ORD-1","total_amount":10}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/orders", strings.NewReader(body))
	req.Header.Set("X-API-Key", "admin-key")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", w.Code)
	}
}

func TestRouterResponsesAreGzipped(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders/1", nil)
	req.Header.Set("X-API-Key", "admin-key")
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip response, got %q", w.Header().Get("Content-Encoding"))
	}
}

func TestRouterReconcileRoute(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/reconcile", nil)
	req.Header.Set("X-API-Key", "admin-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var result map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if _, ok := result["linked"]; !ok {
		t.Fatalf("expected linked count in response, got %v", result)
	}
}
