package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"billstock/backend/internal/domain"
	"billstock/backend/internal/invoice"
	"billstock/backend/internal/store"
	"billstock/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.New(), Options{})
}

func adminContext() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func staffContext() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: domain.RoleStaff})
}

func decPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func intPtr(n int) *int {
	return &n
}

func seedProduct(t *testing.T, svc *Service, name string, selling int64, gst int64, stock int) domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(adminContext(), domain.ProductRequest{
		Name:          name,
		PurchasePrice: decimal.NewFromInt(selling / 2),
		SellingPrice:  decimal.NewFromInt(selling),
		StockQuantity: intPtr(stock),
		GSTPercentage: decPtr(decimal.NewFromInt(gst)),
	})
	if err != nil {
		t.Fatalf("seed product %s: %v", name, err)
	}
	return product
}

func seedVendor(t *testing.T, svc *Service, name string) domain.Vendor {
	t.Helper()
	vendor, err := svc.CreateVendor(adminContext(), domain.VendorRequest{Name: name})
	if err != nil {
		t.Fatalf("seed vendor %s: %v", name, err)
	}
	return vendor
}

func TestCreateSaleTotalsReconcile(t *testing.T) {
	svc := newTestService()
	ctx := staffContext()
	product := seedProduct(t, svc, "A4 Paper Ream", 100, 18, 50)

	resp, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{ProductID: product.ID, Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if !resp.TotalAmount.Equal(decimal.NewFromInt(590)) {
		t.Fatalf("expected total 590, got %s", resp.TotalAmount)
	}

	sale, err := svc.GetSale(ctx, resp.ID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if !sale.Subtotal.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected subtotal 500, got %s", sale.Subtotal)
	}
	if !sale.GSTAmount.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("expected gst 90, got %s", sale.GSTAmount)
	}

	updated, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if updated.StockQuantity != 45 {
		t.Fatalf("expected stock 45 after sale, got %d", updated.StockQuantity)
	}
}

func TestCreateSaleDiscountAppliesBeforeGST(t *testing.T) {
	svc := newTestService()
	ctx := staffContext()
	product := seedProduct(t, svc, "Ballpoint Pen Box", 100, 18, 10)

	resp, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{
			ProductID: product.ID,
			Quantity:  2,
			Discount:  decPtr(decimal.NewFromInt(10)),
		}},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	// (100-10)*2 = 180, GST 18% = 32.40, total 212.40
	if !resp.TotalAmount.Equal(decimal.RequireFromString("212.40")) {
		t.Fatalf("expected total 212.40, got %s", resp.TotalAmount)
	}

	sale, err := svc.GetSale(ctx, resp.ID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if !sale.Subtotal.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("expected subtotal 180 after line discounts, got %s", sale.Subtotal)
	}
	if !sale.Discount.IsZero() {
		t.Fatalf("expected header discount 0 without a sale-level discount, got %s", sale.Discount)
	}
}

func TestCreateSaleHeaderRecordsAggregateDiscountOnly(t *testing.T) {
	svc := newTestService()
	ctx := staffContext()
	product := seedProduct(t, svc, "Copier Toner", 100, 0, 10)

	resp, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Discount: decimal.NewFromInt(20),
		Items: []domain.SaleItemRequest{{
			ProductID: product.ID,
			Quantity:  2,
			Discount:  decPtr(decimal.NewFromInt(10)),
		}},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	sale, err := svc.GetSale(ctx, resp.ID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if !sale.Subtotal.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("expected subtotal 180, got %s", sale.Subtotal)
	}
	if !sale.Discount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected header discount 20, got %s", sale.Discount)
	}
	if !sale.TotalAmount.Equal(decimal.NewFromInt(160)) {
		t.Fatalf("expected total 160, got %s", sale.TotalAmount)
	}
	if len(sale.Items) != 1 || !sale.Items[0].Discount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected line discount 10 preserved, got %+v", sale.Items)
	}
}

func TestCreateSaleSameProductTwiceChecksCombinedStock(t *testing.T) {
	svc := newTestService()
	ctx := staffContext()
	product := seedProduct(t, svc, "Whiteboard Eraser", 40, 18, 5)

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{
			{ProductID: product.ID, Quantity: 3},
			{ProductID: product.ID, Quantity: 3},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock for combined demand 6 of 5, got %v", err)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.StockQuantity != 5 {
		t.Fatalf("expected stock unchanged at 5, got %d", after.StockQuantity)
	}
}

func TestCreateSaleSameProductTwiceFittingExactly(t *testing.T) {
	svc := newTestService()
	ctx := staffContext()
	product := seedProduct(t, svc, "Desk Organizer", 60, 12, 6)

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{
			{ProductID: product.ID, Quantity: 3},
			{ProductID: product.ID, Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.StockQuantity != 0 {
		t.Fatalf("expected stock drained to 0, got %d", after.StockQuantity)
	}
}

func TestCreateSaleInsufficientStockLeavesStateUntouched(t *testing.T) {
	svc := newTestService()
	ctx := staffContext()
	product := seedProduct(t, svc, "Stapler", 150, 18, 3)

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{ProductID: product.ID, Quantity: 5}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.StockQuantity != 3 {
		t.Fatalf("expected stock unchanged at 3, got %d", after.StockQuantity)
	}
	sales, err := svc.ListSales(ctx, domain.SaleFilter{})
	if err != nil {
		t.Fatalf("list sales failed: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no sales recorded, got %d", len(sales))
	}
}

func TestCreateSaleMultiLineFailureIsAtomic(t *testing.T) {
	svc := newTestService()
	ctx := staffContext()
	plenty := seedProduct(t, svc, "Notebook", 50, 12, 100)
	scarce := seedProduct(t, svc, "Marker", 30, 18, 1)

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{
			{ProductID: plenty.ID, Quantity: 10},
			{ProductID: scarce.ID, Quantity: 2},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	first, _ := svc.GetProduct(ctx, plenty.ID)
	if first.StockQuantity != 100 {
		t.Fatalf("expected first line stock untouched at 100, got %d", first.StockQuantity)
	}
}

func TestCreateSaleDuplicateInvoiceConflicts(t *testing.T) {
	svc := newTestService()
	ctx := staffContext()
	product := seedProduct(t, svc, "Glue Stick", 20, 18, 50)

	req := domain.SaleCreateRequest{
		InvoiceNumber: "INV-MANUAL-0001",
		Items:         []domain.SaleItemRequest{{ProductID: product.ID, Quantity: 1}},
	}
	if _, err := svc.CreateSale(ctx, req); err != nil {
		t.Fatalf("first sale failed: %v", err)
	}
	_, err := svc.CreateSale(ctx, req)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for duplicate invoice, got %v", err)
	}
}

func TestCreateSaleRequiresActor(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateSale(context.Background(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{ProductID: "prod-x", Quantity: 1}},
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden without actor, got %v", err)
	}
}

func TestCreateSaleUnknownCustomer(t *testing.T) {
	svc := newTestService()
	product := seedProduct(t, svc, "Tape", 15, 18, 10)

	_, err := svc.CreateSale(staffContext(), domain.SaleCreateRequest{
		CustomerID: "cust-missing",
		Items:      []domain.SaleItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown customer, got %v", err)
	}
}

func TestCreateSaleRejectsExcessiveDiscount(t *testing.T) {
	svc := newTestService()
	product := seedProduct(t, svc, "Envelope Pack", 40, 12, 20)

	_, err := svc.CreateSale(staffContext(), domain.SaleCreateRequest{
		Discount: decimal.NewFromInt(1000),
		Items:    []domain.SaleItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for oversized discount, got %v", err)
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	svc := newTestService()
	product := seedProduct(t, svc, "Last Calculator", 500, 18, 1)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.CreateSale(staffContext(), domain.SaleCreateRequest{
				InvoiceNumber: fmt.Sprintf("INV-RACE-%d", n),
				Items:         []domain.SaleItemRequest{{ProductID: product.ID, Quantity: 1}},
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded, insufficient := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || insufficient != 1 {
		t.Fatalf("expected exactly one success and one stock failure, got %d/%d", succeeded, insufficient)
	}

	after, _ := svc.GetProduct(staffContext(), product.ID)
	if after.StockQuantity != 0 {
		t.Fatalf("expected stock 0 after race, got %d", after.StockQuantity)
	}
}

// conflictingRepo forces invoice collisions for the first N creates so the
// retry loop can be observed.
type conflictingRepo struct {
	store.Repository
	mu        sync.Mutex
	conflicts int
	attempts  int
}

func (r *conflictingRepo) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	r.mu.Lock()
	r.attempts++
	reject := r.conflicts > 0
	if reject {
		r.conflicts--
	}
	r.mu.Unlock()
	if reject {
		return nil, fmt.Errorf("%w: invoice number %q", store.ErrConflict, sale.InvoiceNumber)
	}
	return r.Repository.CreateSale(ctx, sale)
}

func TestGeneratedInvoiceRetriesOnCollision(t *testing.T) {
	repo := &conflictingRepo{Repository: memory.New(), conflicts: 2}
	svc := New(repo, Options{})
	product := seedProduct(t, svc, "Ruler", 10, 12, 10)

	resp, err := svc.CreateSale(staffContext(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("expected sale to succeed after retries, got %v", err)
	}
	if resp.InvoiceNumber == "" {
		t.Fatalf("expected generated invoice number")
	}
	if repo.attempts != 3 {
		t.Fatalf("expected 3 create attempts, got %d", repo.attempts)
	}
}

func TestGeneratedInvoiceGivesUpAfterMaxAttempts(t *testing.T) {
	repo := &conflictingRepo{Repository: memory.New(), conflicts: invoice.MaxAttempts + 1}
	svc := New(repo, Options{})
	product := seedProduct(t, svc, "Scissors", 60, 18, 10)

	_, err := svc.CreateSale(staffContext(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	if err == nil {
		t.Fatalf("expected exhaustion error")
	}
	if !strings.Contains(err.Error(), "invoice") {
		t.Fatalf("expected invoice exhaustion error, got %v", err)
	}
	if repo.attempts != invoice.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", invoice.MaxAttempts, repo.attempts)
	}
}

func TestCreatePurchaseIncrementsStockAndPrices(t *testing.T) {
	svc := newTestService()
	ctx := staffContext()
	vendor := seedVendor(t, svc, "Sharma Distributors")
	product := seedProduct(t, svc, "A4 Paper Ream", 240, 12, 10)

	resp, err := svc.CreatePurchase(ctx, domain.PurchaseCreateRequest{
		VendorID: vendor.ID,
		Items: []domain.PurchaseItemRequest{{
			ProductID: product.ID,
			Quantity:  10,
			UnitPrice: decPtr(decimal.NewFromInt(50)),
			GSTAmount: decPtr(decimal.NewFromInt(25)),
		}},
	})
	if err != nil {
		t.Fatalf("create purchase failed: %v", err)
	}
	if !resp.TotalAmount.Equal(decimal.NewFromInt(525)) {
		t.Fatalf("expected total 525, got %s", resp.TotalAmount)
	}
	if !strings.HasPrefix(resp.InvoiceNumber, "PUR-") {
		t.Fatalf("expected generated PUR invoice, got %q", resp.InvoiceNumber)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.StockQuantity != 20 {
		t.Fatalf("expected stock 20 after receipt, got %d", after.StockQuantity)
	}
	if !after.PurchasePrice.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected purchase price 50, got %s", after.PurchasePrice)
	}
}

func TestCreatePurchaseAcceptsGSTRateConvenience(t *testing.T) {
	svc := newTestService()
	vendor := seedVendor(t, svc, "Gupta Traders")
	product := seedProduct(t, svc, "Notebook", 50, 12, 5)

	resp, err := svc.CreatePurchase(staffContext(), domain.PurchaseCreateRequest{
		VendorID: vendor.ID,
		Items: []domain.PurchaseItemRequest{{
			ProductID:     product.ID,
			Quantity:      10,
			UnitPrice:     decPtr(decimal.NewFromInt(50)),
			GSTPercentage: decPtr(decimal.NewFromInt(5)),
		}},
	})
	if err != nil {
		t.Fatalf("create purchase failed: %v", err)
	}
	// 500 + 5% = 525
	if !resp.TotalAmount.Equal(decimal.NewFromInt(525)) {
		t.Fatalf("expected total 525, got %s", resp.TotalAmount)
	}
}

func TestCreatePurchaseCreatesUnknownProductByName(t *testing.T) {
	svc := newTestService()
	ctx := staffContext()
	vendor := seedVendor(t, svc, "Verma Supplies")

	resp, err := svc.CreatePurchase(ctx, domain.PurchaseCreateRequest{
		VendorID: vendor.ID,
		Items: []domain.PurchaseItemRequest{{
			ProductName:  "Whiteboard Eraser",
			Quantity:     12,
			UnitPrice:    decPtr(decimal.NewFromInt(30)),
			SellingPrice: decPtr(decimal.NewFromInt(45)),
			HSNCode:      "9610",
		}},
	})
	if err != nil {
		t.Fatalf("create purchase failed: %v", err)
	}
	if resp.ID == "" {
		t.Fatalf("expected purchase id")
	}

	products, err := svc.ListProducts(ctx, domain.ProductFilter{VendorID: vendor.ID})
	if err != nil {
		t.Fatalf("list products failed: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected one product created from purchase, got %d", len(products))
	}
	created := products[0]
	if created.Name != "Whiteboard Eraser" {
		t.Fatalf("unexpected product name %q", created.Name)
	}
	if created.StockQuantity != 12 {
		t.Fatalf("expected stock 12, got %d", created.StockQuantity)
	}
	if !created.PurchasePrice.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected purchase price 30, got %s", created.PurchasePrice)
	}
	if !created.SellingPrice.Equal(decimal.NewFromInt(45)) {
		t.Fatalf("expected selling price 45, got %s", created.SellingPrice)
	}
}

func TestCreatePurchaseMatchesExistingProductByName(t *testing.T) {
	svc := newTestService()
	ctx := staffContext()
	vendor := seedVendor(t, svc, "Mehta Paper Co")
	product := seedProduct(t, svc, "A4 Paper Ream", 240, 12, 10)

	_, err := svc.CreatePurchase(ctx, domain.PurchaseCreateRequest{
		VendorID: vendor.ID,
		Items: []domain.PurchaseItemRequest{{
			ProductName: "a4 paper ream",
			Quantity:    5,
			UnitPrice:   decPtr(decimal.NewFromInt(180)),
		}},
	})
	if err != nil {
		t.Fatalf("create purchase failed: %v", err)
	}

	products, _ := svc.ListProducts(ctx, domain.ProductFilter{})
	if len(products) != 1 {
		t.Fatalf("expected name match to reuse the product, got %d products", len(products))
	}
	if products[0].StockQuantity != 15 {
		t.Fatalf("expected stock 15, got %d", products[0].StockQuantity)
	}
	if products[0].ID != product.ID {
		t.Fatalf("expected existing product to be reused")
	}
}

func TestCreatePurchasePriceLastWriteWins(t *testing.T) {
	svc := newTestService()
	ctx := staffContext()
	vendor := seedVendor(t, svc, "Joshi Agencies")
	product := seedProduct(t, svc, "Marker", 30, 18, 0)

	for _, price := range []int64{18, 22} {
		_, err := svc.CreatePurchase(ctx, domain.PurchaseCreateRequest{
			VendorID: vendor.ID,
			Items: []domain.PurchaseItemRequest{{
				ProductID: product.ID,
				Quantity:  10,
				UnitPrice: decPtr(decimal.NewFromInt(price)),
			}},
		})
		if err != nil {
			t.Fatalf("create purchase at %d failed: %v", price, err)
		}
	}

	after, _ := svc.GetProduct(ctx, product.ID)
	if !after.PurchasePrice.Equal(decimal.NewFromInt(22)) {
		t.Fatalf("expected last received price 22, got %s", after.PurchasePrice)
	}
	if after.StockQuantity != 20 {
		t.Fatalf("expected stock 20, got %d", after.StockQuantity)
	}
}

func TestCreatePurchaseCarriesSellingPriceUpdate(t *testing.T) {
	svc := newTestService()
	ctx := staffContext()
	vendor := seedVendor(t, svc, "Kumar Stationers")
	product := seedProduct(t, svc, "Notebook", 50, 12, 5)

	_, err := svc.CreatePurchase(ctx, domain.PurchaseCreateRequest{
		VendorID: vendor.ID,
		Items: []domain.PurchaseItemRequest{{
			ProductID:    product.ID,
			Quantity:     10,
			UnitPrice:    decPtr(decimal.NewFromInt(32)),
			SellingPrice: decPtr(decimal.NewFromInt(55)),
		}},
	})
	if err != nil {
		t.Fatalf("create purchase failed: %v", err)
	}

	after, _ := svc.GetProduct(ctx, product.ID)
	if !after.SellingPrice.Equal(decimal.NewFromInt(55)) {
		t.Fatalf("expected selling price 55, got %s", after.SellingPrice)
	}
}

func TestCreatePurchaseUnknownVendor(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreatePurchase(staffContext(), domain.PurchaseCreateRequest{
		VendorID: "vend-missing",
		Items:    []domain.PurchaseItemRequest{{ProductName: "Anything", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown vendor, got %v", err)
	}
}

func TestCreatePurchaseDuplicateInvoiceConflicts(t *testing.T) {
	svc := newTestService()
	ctx := staffContext()
	vendor := seedVendor(t, svc, "Patel Brothers")
	product := seedProduct(t, svc, "Tape", 15, 18, 0)

	req := domain.PurchaseCreateRequest{
		VendorID:      vendor.ID,
		InvoiceNumber: "VENDOR-BILL-77",
		Items: []domain.PurchaseItemRequest{{
			ProductID: product.ID,
			Quantity:  5,
			UnitPrice: decPtr(decimal.NewFromInt(10)),
		}},
	}
	if _, err := svc.CreatePurchase(ctx, req); err != nil {
		t.Fatalf("first purchase failed: %v", err)
	}
	_, err := svc.CreatePurchase(ctx, req)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for duplicate vendor invoice, got %v", err)
	}
}
