package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"billstock/backend/internal/domain"
	"billstock/backend/internal/invoice"
	"billstock/backend/internal/pricing"
	"billstock/backend/internal/store"
)

func isSupportedPaymentStatus(status string) bool {
	switch status {
	case domain.PaymentStatusPending, domain.PaymentStatusPartial, domain.PaymentStatusPaid:
		return true
	}
	return false
}

// CreateSale prices the request, assigns an invoice number and hands the
// assembled document to the repository, which performs the atomic stock
// check-and-decrement. Generated invoice numbers are retried on collision up
// to invoice.MaxAttempts; caller-supplied numbers fail Conflict immediately.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleCreateResponse, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.SaleCreateResponse{}, err
	}
	if len(req.Items) == 0 {
		return domain.SaleCreateResponse{}, fmt.Errorf("%w: sale requires at least one item", store.ErrValidation)
	}

	if req.PaymentStatus == "" {
		req.PaymentStatus = domain.PaymentStatusPaid
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash"
	}
	if !isSupportedPaymentStatus(req.PaymentStatus) {
		return domain.SaleCreateResponse{}, fmt.Errorf("%w: payment status %q", store.ErrValidation, req.PaymentStatus)
	}

	saleDate, err := parseDate(req.SaleDate)
	if err != nil {
		return domain.SaleCreateResponse{}, err
	}
	if saleDate.IsZero() {
		saleDate = time.Now().UTC()
	}

	if req.CustomerID != "" {
		if _, err := s.repo.GetCustomerByID(ctx, req.CustomerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.SaleCreateResponse{}, fmt.Errorf("%w: customer %s", store.ErrNotFound, req.CustomerID)
			}
			return domain.SaleCreateResponse{}, err
		}
	}

	subtotal := decimal.Zero
	gstTotal := decimal.Zero
	lineTotal := decimal.Zero
	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, line := range req.Items {
		if line.ProductID == "" {
			return domain.SaleCreateResponse{}, fmt.Errorf("%w: sale item requires product_id", store.ErrValidation)
		}
		product, err := s.repo.GetProductByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.SaleCreateResponse{}, fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
			}
			return domain.SaleCreateResponse{}, err
		}

		// Prices and rates default from the catalog but the caller may
		// override per line (wholesale deals, negotiated rates).
		unitPrice := product.SellingPrice
		if line.UnitPrice != nil {
			unitPrice = *line.UnitPrice
		}
		discount := decimal.Zero
		if line.Discount != nil {
			discount = *line.Discount
		}
		gstRate := product.GSTPercentage
		if line.GSTPercentage != nil {
			gstRate = *line.GSTPercentage
		}

		priced, err := pricing.ComputeSaleLine(unitPrice, line.Quantity, discount, gstRate)
		if err != nil {
			return domain.SaleCreateResponse{}, err
		}

		// The header subtotal is the sum of taxable amounts, after per-line
		// discounts but before GST.
		subtotal = subtotal.Add(priced.Subtotal.Sub(priced.Discount))
		gstTotal = gstTotal.Add(priced.GSTAmount)
		lineTotal = lineTotal.Add(priced.Total)

		items = append(items, domain.SaleItem{
			ProductID:     product.ID,
			ProductName:   product.Name,
			Quantity:      line.Quantity,
			UnitPrice:     unitPrice.Round(2),
			GSTPercentage: gstRate,
			GSTAmount:     priced.GSTAmount,
			Discount:      discount.Round(2),
			TotalPrice:    priced.Total,
		})
	}

	saleDiscount := req.Discount
	if saleDiscount.IsNegative() {
		return domain.SaleCreateResponse{}, fmt.Errorf("%w: discount must not be negative", store.ErrValidation)
	}
	if saleDiscount.GreaterThan(lineTotal) {
		return domain.SaleCreateResponse{}, fmt.Errorf("%w: discount exceeds sale total", store.ErrValidation)
	}
	total := lineTotal.Sub(saleDiscount).Round(2)

	sale := domain.Sale{
		CustomerID:    req.CustomerID,
		SaleDate:      saleDate,
		Subtotal:      subtotal.Round(2),
		Discount:      saleDiscount.Round(2),
		GSTAmount:     gstTotal.Round(2),
		TotalAmount:   total,
		PaymentStatus: req.PaymentStatus,
		PaymentMethod: req.PaymentMethod,
		Notes:         strings.TrimSpace(req.Notes),
		Items:         items,
	}

	created, err := s.persistSaleWithInvoice(ctx, sale, strings.TrimSpace(req.InvoiceNumber))
	if err != nil {
		return domain.SaleCreateResponse{}, err
	}

	s.logAudit(ctx, "sale_create", "sale", created.ID,
		fmt.Sprintf("invoice=%s,items=%d,total=%s", created.InvoiceNumber, len(created.Items), created.TotalAmount))

	return domain.SaleCreateResponse{
		ID:            created.ID,
		InvoiceNumber: created.InvoiceNumber,
		TotalAmount:   created.TotalAmount,
	}, nil
}

func (s *Service) persistSaleWithInvoice(ctx context.Context, sale domain.Sale, supplied string) (*domain.Sale, error) {
	if supplied != "" {
		sale.InvoiceNumber = supplied
		return s.repo.CreateSale(ctx, sale)
	}

	for attempt := 0; attempt < invoice.MaxAttempts; attempt++ {
		sale.InvoiceNumber = s.saleInvoices.Next(time.Now().UTC())
		created, err := s.repo.CreateSale(ctx, sale)
		if err == nil {
			return created, nil
		}
		// Only an invoice collision is worth a fresh number; anything else
		// (insufficient stock, validation) will fail identically on retry.
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		return nil, err
	}
	return nil, invoice.ErrExhausted(s.saleInvoices.Prefix())
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, filter)
}

// CreatePurchase records received goods. Unknown products named in the lines
// are created first (resolvePurchaseProduct), then the repository increments
// stock and persists the document atomically. GST on purchase lines is a
// supplied amount, not a derived percentage; a rate is accepted only as a
// convenience and converted once, here.
func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.PurchaseCreateResponse, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.PurchaseCreateResponse{}, err
	}
	if len(req.Items) == 0 {
		return domain.PurchaseCreateResponse{}, fmt.Errorf("%w: purchase requires at least one item", store.ErrValidation)
	}
	if req.VendorID == "" {
		return domain.PurchaseCreateResponse{}, fmt.Errorf("%w: vendor_id required", store.ErrValidation)
	}
	if _, err := s.repo.GetVendorByID(ctx, req.VendorID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.PurchaseCreateResponse{}, fmt.Errorf("%w: vendor %s", store.ErrNotFound, req.VendorID)
		}
		return domain.PurchaseCreateResponse{}, err
	}

	if req.PaymentStatus == "" {
		req.PaymentStatus = domain.PaymentStatusPending
	}
	if !isSupportedPaymentStatus(req.PaymentStatus) {
		return domain.PurchaseCreateResponse{}, fmt.Errorf("%w: payment status %q", store.ErrValidation, req.PaymentStatus)
	}

	purchaseDate, err := parseDate(req.PurchaseDate)
	if err != nil {
		return domain.PurchaseCreateResponse{}, err
	}
	if purchaseDate.IsZero() {
		purchaseDate = time.Now().UTC()
	}

	total := decimal.Zero
	gstTotal := decimal.Zero
	items := make([]domain.PurchaseItem, 0, len(req.Items))
	for _, line := range req.Items {
		product, err := s.resolvePurchaseProduct(ctx, req.VendorID, line)
		if err != nil {
			return domain.PurchaseCreateResponse{}, err
		}

		unitPrice := product.PurchasePrice
		if line.UnitPrice != nil {
			unitPrice = *line.UnitPrice
		}

		gstAmount := decimal.Zero
		switch {
		case line.GSTAmount != nil:
			gstAmount = *line.GSTAmount
		case line.GSTPercentage != nil:
			gstAmount, err = pricing.GSTFromRate(unitPrice, line.Quantity, *line.GSTPercentage)
			if err != nil {
				return domain.PurchaseCreateResponse{}, err
			}
		}

		priced, err := pricing.ComputePurchaseLine(unitPrice, line.Quantity, gstAmount)
		if err != nil {
			return domain.PurchaseCreateResponse{}, err
		}
		total = total.Add(priced.Total)
		gstTotal = gstTotal.Add(priced.GSTAmount)

		items = append(items, domain.PurchaseItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   unitPrice.Round(2),
			GSTAmount:   priced.GSTAmount,
			TotalPrice:  priced.Total,
		})
	}

	purchase := domain.Purchase{
		VendorID:      req.VendorID,
		PurchaseDate:  purchaseDate,
		GSTAmount:     gstTotal.Round(2),
		TotalAmount:   total.Round(2),
		PaymentStatus: req.PaymentStatus,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Notes:         strings.TrimSpace(req.Notes),
		Items:         items,
	}

	created, err := s.persistPurchaseWithInvoice(ctx, purchase, strings.TrimSpace(req.InvoiceNumber))
	if err != nil {
		return domain.PurchaseCreateResponse{}, err
	}

	s.logAudit(ctx, "purchase_create", "purchase", created.ID,
		fmt.Sprintf("vendor=%s,items=%d,total=%s", created.VendorID, len(created.Items), created.TotalAmount))

	return domain.PurchaseCreateResponse{
		ID:            created.ID,
		InvoiceNumber: created.InvoiceNumber,
		TotalAmount:   created.TotalAmount,
	}, nil
}

func (s *Service) persistPurchaseWithInvoice(ctx context.Context, purchase domain.Purchase, supplied string) (*domain.Purchase, error) {
	if supplied != "" {
		purchase.InvoiceNumber = supplied
		return s.repo.CreatePurchase(ctx, purchase)
	}

	for attempt := 0; attempt < invoice.MaxAttempts; attempt++ {
		purchase.InvoiceNumber = s.purchInvoice.Next(time.Now().UTC())
		created, err := s.repo.CreatePurchase(ctx, purchase)
		if err == nil {
			return created, nil
		}
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		return nil, err
	}
	return nil, invoice.ErrExhausted(s.purchInvoice.Prefix())
}

// resolvePurchaseProduct maps a purchase line onto a catalog product. Lines
// may reference an existing product by id, match one by name, or name a
// brand-new product, which is created on the spot with the received cost as
// its purchase price. This runs before any stock moves so the caller can test
// it in isolation.
func (s *Service) resolvePurchaseProduct(ctx context.Context, vendorID string, line domain.PurchaseItemRequest) (*domain.Product, error) {
	if line.ProductID != "" {
		product, err := s.repo.GetProductByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
			}
			return nil, err
		}
		return s.applyPurchaseLineUpdates(ctx, product, line)
	}

	name := strings.TrimSpace(line.ProductName)
	if name == "" {
		return nil, fmt.Errorf("%w: purchase item requires product_id or product_name", store.ErrValidation)
	}

	product, err := s.repo.FindProductByName(ctx, name)
	if err == nil {
		return s.applyPurchaseLineUpdates(ctx, product, line)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	unitPrice := decimal.Zero
	if line.UnitPrice != nil {
		unitPrice = *line.UnitPrice
	}
	sellingPrice := unitPrice
	if line.SellingPrice != nil {
		sellingPrice = *line.SellingPrice
	}
	gstRate := decimal.Zero
	if line.GSTPercentage != nil {
		gstRate = *line.GSTPercentage
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:           name,
		PurchasePrice:  unitPrice,
		SellingPrice:   sellingPrice,
		WholesalePrice: sellingPrice,
		GSTPercentage:  gstRate,
		HSNCode:        strings.TrimSpace(line.HSNCode),
		VendorID:       vendorID,
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "product_create", "product", created.ID,
		fmt.Sprintf("name=%s,source=purchase", created.Name))
	return created, nil
}

// applyPurchaseLineUpdates carries a supplied selling price onto an existing
// product. The purchase price itself follows the received line inside the
// repository's purchase transaction.
func (s *Service) applyPurchaseLineUpdates(ctx context.Context, product *domain.Product, line domain.PurchaseItemRequest) (*domain.Product, error) {
	if line.SellingPrice == nil || line.SellingPrice.Equal(product.SellingPrice) {
		return product, nil
	}
	if line.SellingPrice.IsNegative() {
		return nil, fmt.Errorf("%w: selling price must not be negative", store.ErrValidation)
	}
	updated := *product
	updated.SellingPrice = *line.SellingPrice
	return s.repo.UpdateProduct(ctx, updated)
}

func (s *Service) GetPurchase(ctx context.Context, id string) (domain.Purchase, error) {
	purchase, err := s.repo.GetPurchaseByID(ctx, id)
	if err != nil {
		return domain.Purchase{}, err
	}
	return *purchase, nil
}

func (s *Service) ListPurchases(ctx context.Context, filter domain.PurchaseFilter) ([]domain.Purchase, error) {
	return s.repo.ListPurchases(ctx, filter)
}
