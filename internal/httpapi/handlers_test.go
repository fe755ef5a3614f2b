package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"billstock/backend/internal/domain"
	"billstock/backend/internal/service"
	"billstock/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, service.Options{})
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*", nil)
}

func loginAs(t *testing.T, api *API, username, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("%s login failed, status %d (body: %s)", username, res.Code, res.Body.String())
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

func loginAsAdmin(t *testing.T, api *API) string {
	t.Helper()
	return loginAs(t, api, "admin", "admin123")
}

func authedRequest(t *testing.T, api *API, token, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func firstProductID(t *testing.T, api *API, token string) string {
	t.Helper()

	res := authedRequest(t, api, token, http.MethodGet, "/api/v1/products", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("list products failed: %d %s", res.Code, res.Body.String())
	}
	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(body.Products) == 0 {
		t.Fatalf("expected seeded products")
	}
	return body.Products[0].ID
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := authedRequest(t, api, token, http.MethodGet, "/api/v1/products", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["products"] == nil {
		t.Fatalf("expected products key in response, got %v", body)
	}
}

func TestCreateSaleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	productID := firstProductID(t, api, token)

	res := authedRequest(t, api, token, http.MethodPost, "/api/v1/sales", map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": 2}},
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}

	var resp domain.SaleCreateResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode sale response: %v", err)
	}
	if !strings.HasPrefix(resp.InvoiceNumber, "INV-") {
		t.Fatalf("expected generated INV number, got %q", resp.InvoiceNumber)
	}

	get := authedRequest(t, api, token, http.MethodGet, "/api/v1/sales/"+resp.ID, nil)
	if get.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching sale, got %d", get.Code)
	}
}

func TestCreateSaleDuplicateInvoiceReturns409(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	productID := firstProductID(t, api, token)

	payload := map[string]any{
		"invoice_number": "INV-DUP-1",
		"items":          []map[string]any{{"product_id": productID, "quantity": 1}},
	}
	if res := authedRequest(t, api, token, http.MethodPost, "/api/v1/sales", payload); res.Code != http.StatusCreated {
		t.Fatalf("first sale expected 201, got %d", res.Code)
	}
	if res := authedRequest(t, api, token, http.MethodPost, "/api/v1/sales", payload); res.Code != http.StatusConflict {
		t.Fatalf("duplicate invoice expected 409, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestCreateSaleOversellReturns409(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	productID := firstProductID(t, api, token)

	res := authedRequest(t, api, token, http.MethodPost, "/api/v1/sales", map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": 100000}},
	})
	if res.Code != http.StatusConflict {
		t.Fatalf("oversell expected 409, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestStaffCannotDeleteProduct(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)
	staff := loginAs(t, api, "staff", "staff123")
	productID := firstProductID(t, api, admin)

	res := authedRequest(t, api, staff, http.MethodDelete, "/api/v1/products/"+productID, nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("staff delete expected 403, got %d", res.Code)
	}
}

func TestUsersEndpointIsAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	staff := loginAs(t, api, "staff", "staff123")

	res := authedRequest(t, api, staff, http.MethodGet, "/api/v1/users", nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("staff users list expected 403, got %d", res.Code)
	}

	admin := loginAsAdmin(t, api)
	res = authedRequest(t, api, admin, http.MethodGet, "/api/v1/users", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("admin users list expected 200, got %d", res.Code)
	}
}

func TestVendorAndPurchaseFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := authedRequest(t, api, token, http.MethodPost, "/api/v1/vendors", map[string]any{
		"name": "Sharma Distributors",
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("create vendor expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}
	var vendorBody struct {
		Vendor domain.Vendor `json:"vendor"`
	}
	if err := json.NewDecoder(res.Body).Decode(&vendorBody); err != nil {
		t.Fatalf("decode vendor: %v", err)
	}

	res = authedRequest(t, api, token, http.MethodPost, "/api/v1/purchases", map[string]any{
		"vendor_id": vendorBody.Vendor.ID,
		"items": []map[string]any{{
			"product_name": "Whiteboard Marker Set",
			"quantity":     12,
			"unit_price":   "30",
			"gst_amount":   "43.2",
		}},
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("create purchase expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}
	var resp domain.PurchaseCreateResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode purchase response: %v", err)
	}
	if !strings.HasPrefix(resp.InvoiceNumber, "PUR-") {
		t.Fatalf("expected generated PUR number, got %q", resp.InvoiceNumber)
	}
}

func TestSalesReportCSVFormat(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	productID := firstProductID(t, api, token)

	if res := authedRequest(t, api, token, http.MethodPost, "/api/v1/sales", map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": 1}},
	}); res.Code != http.StatusCreated {
		t.Fatalf("seed sale failed: %d", res.Code)
	}

	res := authedRequest(t, api, token, http.MethodGet, "/api/v1/reports/sales?type=daily&format=csv", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("csv report expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	if got := res.Header().Get("Content-Type"); got != "text/csv" {
		t.Fatalf("expected text/csv, got %q", got)
	}
	if !strings.HasPrefix(res.Body.String(), "period,count,total_amount,total_gst") {
		t.Fatalf("unexpected csv header: %s", res.Body.String())
	}
}

func TestSalesReportRejectsBadDate(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := authedRequest(t, api, token, http.MethodGet, "/api/v1/reports/sales?start_date=14-03-2026", nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("bad date expected 400, got %d", res.Code)
	}
}

func TestAuditLogsAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	staff := loginAs(t, api, "staff", "staff123")

	res := authedRequest(t, api, staff, http.MethodGet, "/api/v1/audit-logs", nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("staff audit logs expected 403, got %d", res.Code)
	}
}

func TestBackupsEndpointAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	staff := loginAs(t, api, "staff", "staff123")

	res := authedRequest(t, api, staff, http.MethodGet, "/api/v1/backups", nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("staff backups expected 403, got %d", res.Code)
	}
}

func TestUnknownSaleReturns404(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := authedRequest(t, api, token, http.MethodGet, "/api/v1/sales/sale-missing", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}
