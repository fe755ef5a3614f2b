package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"billstock/backend/internal/domain"
	"billstock/backend/internal/store"
	"billstock/backend/internal/xid"
)

// Store is an in-memory repository for dev mode and tests. A single mutex
// makes CreateSale and CreatePurchase naturally atomic: the stock check and
// the decrement happen under one critical section.
type Store struct {
	mu              sync.RWMutex
	categories      map[string]domain.Category
	vendors         map[string]domain.Vendor
	customers       map[string]domain.Customer
	products        map[string]domain.Product
	salesByID       map[string]domain.Sale
	saleByInvoice   map[string]string
	purchasesByID   map[string]domain.Purchase
	purchInvoices   map[string]string
	backupsByID     map[string]domain.Backup
	scansByID       map[string]domain.Scan
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		categories:      make(map[string]domain.Category),
		vendors:         make(map[string]domain.Vendor),
		customers:       make(map[string]domain.Customer),
		products:        make(map[string]domain.Product),
		salesByID:       make(map[string]domain.Sale),
		saleByInvoice:   make(map[string]string),
		purchasesByID:   make(map[string]domain.Purchase),
		purchInvoices:   make(map[string]string),
		backupsByID:     make(map[string]domain.Backup),
		scansByID:       make(map[string]domain.Scan),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with dev credentials and a small starter catalog.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	general := domain.Category{ID: xid.New("cat"), Name: "General", Description: "Uncategorized items"}
	s.categories[general.ID] = general

	for _, p := range []domain.Product{
		{
			Name:              "A4 Paper Ream",
			SKU:               "STAT-A4-500",
			PurchasePrice:     decimal.NewFromInt(180),
			SellingPrice:      decimal.NewFromInt(240),
			WholesalePrice:    decimal.NewFromInt(210),
			StockQuantity:     60,
			LowStockThreshold: 10,
			GSTPercentage:     decimal.NewFromInt(12),
			HSNCode:           "4802",
			CategoryID:        general.ID,
		},
		{
			Name:              "Ballpoint Pen Box",
			SKU:               "STAT-PEN-50",
			PurchasePrice:     decimal.NewFromInt(150),
			SellingPrice:      decimal.NewFromInt(225),
			WholesalePrice:    decimal.NewFromInt(190),
			StockQuantity:     40,
			LowStockThreshold: 5,
			GSTPercentage:     decimal.NewFromInt(18),
			HSNCode:           "9608",
			CategoryID:        general.ID,
		},
	} {
		p.ID = xid.New("prod")
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	return s
}

// seedUsers builds the initial accounts for dev/demo mode. Credentials come
// from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; hardcoded dev defaults
// are used with a warning when unset. Production deployments run against
// PostgreSQL and never hit this path.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func cmpString(a, b string) int {
	return strings.Compare(a, b)
}

func normName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// --- categories ---

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(category.Name) == "" {
		return nil, fmt.Errorf("%w: category name required", store.ErrValidation)
	}
	for _, existing := range s.categories {
		if normName(existing.Name) == normName(category.Name) {
			return nil, fmt.Errorf("%w: category %q", store.ErrConflict, category.Name)
		}
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b domain.Category) int { return cmpString(a.Name, b.Name) })
	return result, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[category.ID]; !exists {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(category.Name) == "" {
		return nil, fmt.Errorf("%w: category name required", store.ErrValidation)
	}
	for id, existing := range s.categories {
		if id != category.ID && normName(existing.Name) == normName(category.Name) {
			return nil, fmt.Errorf("%w: category %q", store.ErrConflict, category.Name)
		}
	}
	s.categories[category.ID] = category
	updated := category
	return &updated, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[id]; !exists {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if p.CategoryID == id {
			return fmt.Errorf("%w: category has products", store.ErrReferenced)
		}
	}
	delete(s.categories, id)
	return nil
}

// --- vendors ---

func (s *Store) CreateVendor(_ context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(vendor.Name) == "" {
		return nil, fmt.Errorf("%w: vendor name required", store.ErrValidation)
	}
	if vendor.ID == "" {
		vendor.ID = xid.New("vend")
	}
	now := time.Now().UTC()
	if vendor.CreatedAt.IsZero() {
		vendor.CreatedAt = now
	}
	vendor.UpdatedAt = now
	s.vendors[vendor.ID] = vendor
	created := vendor
	return &created, nil
}

func (s *Store) GetVendorByID(_ context.Context, id string) (*domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vendor, exists := s.vendors[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyVendor := vendor
	return &copyVendor, nil
}

func (s *Store) FindVendorByName(_ context.Context, name string) (*domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, vendor := range s.vendors {
		if normName(vendor.Name) == normName(name) {
			copyVendor := vendor
			return &copyVendor, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListVendors(_ context.Context) ([]domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Vendor, 0, len(s.vendors))
	for _, v := range s.vendors {
		result = append(result, v)
	}
	slices.SortFunc(result, func(a, b domain.Vendor) int { return cmpString(a.Name, b.Name) })
	return result, nil
}

func (s *Store) UpdateVendor(_ context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.vendors[vendor.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(vendor.Name) == "" {
		return nil, fmt.Errorf("%w: vendor name required", store.ErrValidation)
	}
	vendor.CreatedAt = existing.CreatedAt
	vendor.UpdatedAt = time.Now().UTC()
	s.vendors[vendor.ID] = vendor
	updated := vendor
	return &updated, nil
}

func (s *Store) DeleteVendor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vendors[id]; !exists {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if p.VendorID == id {
			return fmt.Errorf("%w: vendor has products", store.ErrReferenced)
		}
	}
	for _, pu := range s.purchasesByID {
		if pu.VendorID == id {
			return fmt.Errorf("%w: vendor has purchases", store.ErrReferenced)
		}
	}
	delete(s.vendors, id)
	return nil
}

// --- customers ---

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(customer.Name) == "" {
		return nil, fmt.Errorf("%w: customer name required", store.ErrValidation)
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	now := time.Now().UTC()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}
	customer.UpdatedAt = now
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b domain.Customer) int { return cmpString(a.Name, b.Name) })
	return result, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.customers[customer.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(customer.Name) == "" {
		return nil, fmt.Errorf("%w: customer name required", store.ErrValidation)
	}
	customer.CreatedAt = existing.CreatedAt
	customer.UpdatedAt = time.Now().UTC()
	s.customers[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[id]; !exists {
		return store.ErrNotFound
	}
	for _, sale := range s.salesByID {
		if sale.CustomerID == id {
			return fmt.Errorf("%w: customer has sales", store.ErrReferenced)
		}
	}
	delete(s.customers, id)
	return nil
}

// --- products ---

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateProduct(product, ""); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) validateProduct(product domain.Product, excludeID string) error {
	if strings.TrimSpace(product.Name) == "" {
		return fmt.Errorf("%w: product name required", store.ErrValidation)
	}
	if product.StockQuantity < 0 {
		return fmt.Errorf("%w: stock quantity must not be negative", store.ErrValidation)
	}
	if product.PurchasePrice.IsNegative() || product.SellingPrice.IsNegative() {
		return fmt.Errorf("%w: prices must not be negative", store.ErrValidation)
	}
	for id, existing := range s.products {
		if id == excludeID {
			continue
		}
		if product.SKU != "" && existing.SKU == product.SKU {
			return fmt.Errorf("%w: sku %q", store.ErrConflict, product.SKU)
		}
		if product.Barcode != "" && existing.Barcode == product.Barcode {
			return fmt.Errorf("%w: barcode %q", store.ErrConflict, product.Barcode)
		}
	}
	if product.CategoryID != "" {
		if _, ok := s.categories[product.CategoryID]; !ok {
			return fmt.Errorf("%w: category %s", store.ErrNotFound, product.CategoryID)
		}
	}
	if product.VendorID != "" {
		if _, ok := s.vendors[product.VendorID]; !ok {
			return fmt.Errorf("%w: vendor %s", store.ErrNotFound, product.VendorID)
		}
	}
	return nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := s.decorateProduct(product)
	return &out, nil
}

func (s *Store) FindProductByName(_ context.Context, name string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, product := range s.products {
		if normName(product.Name) == normName(name) {
			out := s.decorateProduct(product)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) decorateProduct(product domain.Product) domain.Product {
	if c, ok := s.categories[product.CategoryID]; ok {
		product.CategoryName = c.Name
	}
	if v, ok := s.vendors[product.VendorID]; ok {
		product.VendorName = v.Name
	}
	return product
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if filter.VendorID != "" && p.VendorID != filter.VendorID {
			continue
		}
		if filter.LowStock && p.StockQuantity > p.LowStockThreshold {
			continue
		}
		result = append(result, s.decorateProduct(p))
	}
	slices.SortFunc(result, func(a, b domain.Product) int { return cmpString(a.Name, b.Name) })
	return result, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if err := s.validateProduct(product, product.ID); err != nil {
		return nil, err
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := s.decorateProduct(product)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	for _, sale := range s.salesByID {
		for _, item := range sale.Items {
			if item.ProductID == id {
				return fmt.Errorf("%w: product has sales", store.ErrReferenced)
			}
		}
	}
	for _, purchase := range s.purchasesByID {
		for _, item := range purchase.Items {
			if item.ProductID == id {
				return fmt.Errorf("%w: product has purchases", store.ErrReferenced)
			}
		}
	}
	delete(s.products, id)
	return nil
}

// --- sales ---

// CreateSale persists the sale and decrements stock for every line under one
// critical section. Validation failures before the first decrement leave the
// store untouched, so a multi-line sale never partially applies.
func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, fmt.Errorf("%w: sale requires at least one item", store.ErrValidation)
	}
	if sale.InvoiceNumber == "" {
		return nil, fmt.Errorf("%w: invoice number required", store.ErrValidation)
	}
	if _, taken := s.saleByInvoice[sale.InvoiceNumber]; taken {
		return nil, fmt.Errorf("%w: invoice number %q", store.ErrConflict, sale.InvoiceNumber)
	}
	if sale.CustomerID != "" {
		if _, ok := s.customers[sale.CustomerID]; !ok {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, sale.CustomerID)
		}
	}

	// Check every line before touching stock. Demand is aggregated per
	// product so an invoice repeating a product cannot pass line by line
	// while the combined quantity exceeds stock.
	demanded := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
		}
		product, exists := s.products[item.ProductID]
		if !exists {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		demanded[item.ProductID] += item.Quantity
		if demanded[item.ProductID] > product.StockQuantity {
			return nil, fmt.Errorf("%w: %s has %d, requested %d",
				store.ErrInsufficientStock, product.Name, product.StockQuantity, demanded[item.ProductID])
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	now := time.Now().UTC()
	if sale.SaleDate.IsZero() {
		sale.SaleDate = now
	}
	sale.CreatedAt = now
	sale.UpdatedAt = now

	items := make([]domain.SaleItem, len(sale.Items))
	copy(items, sale.Items)
	for i := range items {
		product := s.products[items[i].ProductID]
		product.StockQuantity -= items[i].Quantity
		product.UpdatedAt = now
		s.products[items[i].ProductID] = product

		if items[i].ID == "" {
			items[i].ID = xid.New("sitem")
		}
		items[i].SaleID = sale.ID
		items[i].ProductName = product.Name
	}
	sale.Items = items

	s.salesByID[sale.ID] = sale
	s.saleByInvoice[sale.InvoiceNumber] = sale.ID
	return cloneSale(sale), nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if c, ok := s.customers[sale.CustomerID]; ok {
		sale.CustomerName = c.Name
	}
	return cloneSale(sale), nil
}

func (s *Store) FindSaleByInvoice(_ context.Context, invoiceNumber string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.saleByInvoice[invoiceNumber]
	if !exists {
		return nil, store.ErrNotFound
	}
	sale := s.salesByID[id]
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if filter.CustomerID != "" && sale.CustomerID != filter.CustomerID {
			continue
		}
		if filter.From != nil && sale.SaleDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && sale.SaleDate.After(*filter.To) {
			continue
		}
		if c, ok := s.customers[sale.CustomerID]; ok {
			sale.CustomerName = c.Name
		}
		result = append(result, *cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.SaleDate.Equal(b.SaleDate) {
			return cmpString(b.ID, a.ID)
		}
		if a.SaleDate.After(b.SaleDate) {
			return -1
		}
		return 1
	})
	return result, nil
}

func cloneSale(sale domain.Sale) *domain.Sale {
	out := sale
	out.Items = make([]domain.SaleItem, len(sale.Items))
	copy(out.Items, sale.Items)
	return &out
}

// --- purchases ---

// CreatePurchase persists the purchase and increments stock for every line.
// The product's purchase price follows the latest received line, last write
// wins.
func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(purchase.Items) == 0 {
		return nil, fmt.Errorf("%w: purchase requires at least one item", store.ErrValidation)
	}
	vendor, ok := s.vendors[purchase.VendorID]
	if !ok {
		return nil, fmt.Errorf("%w: vendor %s", store.ErrNotFound, purchase.VendorID)
	}
	if purchase.InvoiceNumber != "" {
		if _, taken := s.purchInvoices[purchase.InvoiceNumber]; taken {
			return nil, fmt.Errorf("%w: invoice number %q", store.ErrConflict, purchase.InvoiceNumber)
		}
	}

	// Received quantities are aggregated per product the same way sale
	// demand is, so a repeated product lands as one stock adjustment.
	received := make(map[string]int, len(purchase.Items))
	for _, item := range purchase.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
		}
		if _, exists := s.products[item.ProductID]; !exists {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		received[item.ProductID] += item.Quantity
	}

	if purchase.ID == "" {
		purchase.ID = xid.New("purch")
	}
	now := time.Now().UTC()
	if purchase.PurchaseDate.IsZero() {
		purchase.PurchaseDate = now
	}
	purchase.CreatedAt = now
	purchase.UpdatedAt = now
	purchase.VendorName = vendor.Name

	for productID, quantity := range received {
		product := s.products[productID]
		product.StockQuantity += quantity
		product.UpdatedAt = now
		s.products[productID] = product
	}

	items := make([]domain.PurchaseItem, len(purchase.Items))
	copy(items, purchase.Items)
	for i := range items {
		product := s.products[items[i].ProductID]
		product.PurchasePrice = items[i].UnitPrice
		s.products[items[i].ProductID] = product

		if items[i].ID == "" {
			items[i].ID = xid.New("pitem")
		}
		items[i].PurchaseID = purchase.ID
		items[i].ProductName = product.Name
	}
	purchase.Items = items

	s.purchasesByID[purchase.ID] = purchase
	if purchase.InvoiceNumber != "" {
		s.purchInvoices[purchase.InvoiceNumber] = purchase.ID
	}
	return clonePurchase(purchase), nil
}

func (s *Store) GetPurchaseByID(_ context.Context, id string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchase, exists := s.purchasesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if v, ok := s.vendors[purchase.VendorID]; ok {
		purchase.VendorName = v.Name
	}
	return clonePurchase(purchase), nil
}

func (s *Store) ListPurchases(_ context.Context, filter domain.PurchaseFilter) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Purchase, 0, len(s.purchasesByID))
	for _, purchase := range s.purchasesByID {
		if filter.VendorID != "" && purchase.VendorID != filter.VendorID {
			continue
		}
		if filter.From != nil && purchase.PurchaseDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && purchase.PurchaseDate.After(*filter.To) {
			continue
		}
		if v, ok := s.vendors[purchase.VendorID]; ok {
			purchase.VendorName = v.Name
		}
		result = append(result, *clonePurchase(purchase))
	}
	slices.SortFunc(result, func(a, b domain.Purchase) int {
		if a.PurchaseDate.Equal(b.PurchaseDate) {
			return cmpString(b.ID, a.ID)
		}
		if a.PurchaseDate.After(b.PurchaseDate) {
			return -1
		}
		return 1
	})
	return result, nil
}

func clonePurchase(purchase domain.Purchase) *domain.Purchase {
	out := purchase
	out.Items = make([]domain.PurchaseItem, len(purchase.Items))
	copy(out.Items, purchase.Items)
	return &out
}

// --- backups / scans ---

func (s *Store) CreateBackup(_ context.Context, backup domain.Backup) (*domain.Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if backup.ID == "" {
		backup.ID = xid.New("bkp")
	}
	if backup.CreatedAt.IsZero() {
		backup.CreatedAt = time.Now().UTC()
	}
	s.backupsByID[backup.ID] = backup
	created := backup
	return &created, nil
}

func (s *Store) ListBackups(_ context.Context) ([]domain.Backup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Backup, 0, len(s.backupsByID))
	for _, b := range s.backupsByID {
		result = append(result, b)
	}
	slices.SortFunc(result, func(a, b domain.Backup) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) CreateScan(_ context.Context, scan domain.Scan) (*domain.Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if scan.ID == "" {
		scan.ID = xid.New("scan")
	}
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = time.Now().UTC()
	}
	s.scansByID[scan.ID] = scan
	created := scan
	return &created, nil
}

// --- audit logs ---

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, len(s.auditLogs))
	for _, entry := range s.auditLogs {
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && entry.CreatedAt.After(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := normName(user.Username)
	if username == "" {
		return fmt.Errorf("%w: username required", store.ErrValidation)
	}
	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: username %q", store.ErrConflict, username)
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		result = append(result, u)
	}
	slices.SortFunc(result, func(a, b domain.UserAccount) int { return cmpString(a.Username, b.Username) })
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[normName(username)]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[user.Username] = user
	return nil
}
