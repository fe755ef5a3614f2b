package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"billstock/backend/internal/domain"
)

func pathTail(r *http.Request, prefix string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
}

// --- users ---

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListUsers()})
	case http.MethodPost:
		var req domain.UserCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		user, err := a.auth.CreateUser(req)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		a.writeJSON(w, http.StatusCreated, map[string]any{"user": user})
	default:
		a.writeMethodNotAllowed(w)
	}
}

// --- categories ---

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		categories, err := a.service.ListCategories(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
	case http.MethodPost:
		var req domain.CategoryRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		category, err := a.service.CreateCategory(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusCreated, map[string]any{"category": category})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleCategoryActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r, "/api/v1/categories/")
	if id == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("category id required"))
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req domain.CategoryRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		category, err := a.service.UpdateCategory(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"category": category})
	case http.MethodDelete:
		if err := a.service.DeleteCategory(r.Context(), id); err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		a.writeMethodNotAllowed(w)
	}
}

// --- products ---

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		filter := domain.ProductFilter{
			CategoryID: strings.TrimSpace(query.Get("category_id")),
			VendorID:   strings.TrimSpace(query.Get("vendor_id")),
			LowStock:   query.Get("low_stock") == "true",
		}
		products, err := a.service.ListProducts(r.Context(), filter)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		var req domain.ProductRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r, "/api/v1/products/")
	if id == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("product id required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodPut:
		var req domain.ProductRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.UpdateProduct(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodDelete:
		if err := a.service.DeleteProduct(r.Context(), id); err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		a.writeMethodNotAllowed(w)
	}
}

// --- vendors ---

func (a *API) handleVendors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		vendors, err := a.service.ListVendors(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"vendors": vendors})
	case http.MethodPost:
		var req domain.VendorRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		vendor, err := a.service.CreateVendor(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusCreated, map[string]any{"vendor": vendor})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleVendorActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r, "/api/v1/vendors/")
	if id == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("vendor id required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		vendor, err := a.service.GetVendor(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"vendor": vendor})
	case http.MethodPut:
		var req domain.VendorRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		vendor, err := a.service.UpdateVendor(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"vendor": vendor})
	case http.MethodDelete:
		if err := a.service.DeleteVendor(r.Context(), id); err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		a.writeMethodNotAllowed(w)
	}
}

// --- customers ---

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		customers, err := a.service.ListCustomers(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
	case http.MethodPost:
		var req domain.CustomerRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		customer, err := a.service.CreateCustomer(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomerActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r, "/api/v1/customers/")
	if id == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("customer id required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		customer, err := a.service.GetCustomer(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
	case http.MethodPut:
		var req domain.CustomerRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		customer, err := a.service.UpdateCustomer(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
	case http.MethodDelete:
		if err := a.service.DeleteCustomer(r.Context(), id); err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		a.writeMethodNotAllowed(w)
	}
}

// --- sales ---

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		from, err := parseDateParam(query.Get("start_date"), false)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		to, err := parseDateParam(query.Get("end_date"), true)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		filter := domain.SaleFilter{
			CustomerID: strings.TrimSpace(query.Get("customer_id")),
			From:       from,
			To:         to,
		}
		sales, err := a.service.ListSales(r.Context(), filter)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
	case http.MethodPost:
		var req domain.SaleCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := a.service.CreateSale(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusCreated, resp)
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	id := pathTail(r, "/api/v1/sales/")
	if id == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("sale id required"))
		return
	}
	sale, err := a.service.GetSale(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

// --- purchases ---

func (a *API) handlePurchases(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		from, err := parseDateParam(query.Get("start_date"), false)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		to, err := parseDateParam(query.Get("end_date"), true)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		filter := domain.PurchaseFilter{
			VendorID: strings.TrimSpace(query.Get("vendor_id")),
			From:     from,
			To:       to,
		}
		purchases, err := a.service.ListPurchases(r.Context(), filter)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"purchases": purchases})
	case http.MethodPost:
		var req domain.PurchaseCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := a.service.CreatePurchase(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusCreated, resp)
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchaseActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	id := pathTail(r, "/api/v1/purchases/")
	if id == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("purchase id required"))
		return
	}
	purchase, err := a.service.GetPurchase(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"purchase": purchase})
}

// --- reports ---

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	a.handlePeriodReport(w, r, a.service.SalesReport)
}

func (a *API) handlePurchasesReport(w http.ResponseWriter, r *http.Request) {
	a.handlePeriodReport(w, r, a.service.PurchasesReport)
}

func (a *API) handlePeriodReport(w http.ResponseWriter, r *http.Request,
	build func(ctx context.Context, from *time.Time, to *time.Time, reportType string) (domain.PeriodReport, error)) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	from, err := parseDateParam(query.Get("start_date"), false)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseDateParam(query.Get("end_date"), true)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	report, err := build(r.Context(), from, to, strings.TrimSpace(query.Get("type")))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	if strings.EqualFold(query.Get("format"), "csv") {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=report.csv")
		_, _ = io.WriteString(w, periodReportToCSV(report))
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (a *API) handleStockReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	report, err := a.service.StockReport(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func periodReportToCSV(report domain.PeriodReport) string {
	lines := []string{"period,count,total_amount,total_gst"}
	for _, bucket := range report.Buckets {
		lines = append(lines, strings.Join([]string{
			bucket.Period,
			strconv.Itoa(bucket.Count),
			bucket.TotalAmount.StringFixed(2),
			bucket.TotalGST.StringFixed(2),
		}, ","))
	}
	lines = append(lines, strings.Join([]string{
		"total",
		strconv.Itoa(report.Summary.Count),
		report.Summary.TotalAmount.StringFixed(2),
		report.Summary.TotalGST.StringFixed(2),
	}, ","))
	return strings.Join(lines, "\n") + "\n"
}

// --- backups / scans / audit ---

func (a *API) handleBackups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		backups, err := a.service.ListBackups(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"backups": backups})
	case http.MethodPost:
		record, err := a.service.RunBackup(r.Context())
		if err != nil {
			if record.ID != "" {
				// Dump failed but the failure was recorded.
				a.writeJSON(w, http.StatusBadGateway, map[string]any{"backup": record, "error": "backup failed"})
				return
			}
			a.writeServiceError(w, err)
			return
		}
		a.writeJSON(w, http.StatusCreated, map[string]any{"backup": record})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	var req domain.RestoreRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.RestoreBackup(r.Context(), req); err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"restored": req.FileName})
}

func (a *API) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		a.writeError(w, http.StatusBadRequest, errors.New("multipart field 'file' required"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	scan, err := a.service.DigitizeDocument(r.Context(), header.Filename, content)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"scan": scan})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	from, err := parseDateParam(query.Get("start_date"), false)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseDateParam(query.Get("end_date"), true)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)

	var fromTime, toTime time.Time
	if from != nil {
		fromTime = *from
	}
	if to != nil {
		toTime = *to
	}

	entries, err := a.service.ListAuditLogs(r.Context(), fromTime, toTime, limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"audit_logs": entries})
}
