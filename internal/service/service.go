package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"billstock/backend/internal/backup"
	"billstock/backend/internal/cache"
	"billstock/backend/internal/digitize"
	"billstock/backend/internal/domain"
	"billstock/backend/internal/invoice"
	"billstock/backend/internal/store"
	"billstock/backend/internal/xid"
)

// ErrForbidden marks operations the authenticated actor's role does not
// allow.
var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo         store.Repository
	saleInvoices *invoice.Generator
	purchInvoice *invoice.Generator
	reportCache  cache.ReportCache
	reportTTL    time.Duration
	backups      backup.Runner
	digitizer    digitize.Digitizer
	logger       *zap.Logger
}

type Options struct {
	SaleInvoices     *invoice.Generator
	PurchaseInvoices *invoice.Generator
	ReportCache      cache.ReportCache
	ReportTTL        time.Duration
	Backups          backup.Runner
	Digitizer        digitize.Digitizer
	Logger           *zap.Logger
}

func New(repo store.Repository, opts Options) *Service {
	if opts.SaleInvoices == nil {
		opts.SaleInvoices = invoice.NewGenerator("INV")
	}
	if opts.PurchaseInvoices == nil {
		opts.PurchaseInvoices = invoice.NewGenerator("PUR")
	}
	if opts.ReportCache == nil {
		opts.ReportCache = cache.NoopReportCache{}
	}
	if opts.ReportTTL <= 0 {
		opts.ReportTTL = 30 * time.Second
	}
	if opts.Backups == nil {
		opts.Backups = backup.NoopRunner{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Service{
		repo:         repo,
		saleInvoices: opts.SaleInvoices,
		purchInvoice: opts.PurchaseInvoices,
		reportCache:  opts.ReportCache,
		reportTTL:    opts.ReportTTL,
		backups:      opts.Backups,
		digitizer:    opts.Digitizer,
		logger:       opts.Logger,
	}
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: no authenticated actor", ErrForbidden)
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

// parseDate accepts both plain dates and full timestamps.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", store.ErrValidation, value)
	}
	return t.UTC(), nil
}

// --- categories ---

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryRequest) (domain.Category, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Category{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, fmt.Errorf("%w: category name required", store.ErrValidation)
	}
	created, err := s.repo.CreateCategory(ctx, domain.Category{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return domain.Category{}, err
	}
	s.logAudit(ctx, "category_create", "category", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) UpdateCategory(ctx context.Context, id string, req domain.CategoryRequest) (domain.Category, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Category{}, err
	}
	updated, err := s.repo.UpdateCategory(ctx, domain.Category{
		ID:          id,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return domain.Category{}, err
	}
	s.logAudit(ctx, "category_update", "category", updated.ID, fmt.Sprintf("name=%s", updated.Name))
	return *updated, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "category_delete", "category", id, "")
	return nil
}

// --- vendors ---

func (s *Service) CreateVendor(ctx context.Context, req domain.VendorRequest) (domain.Vendor, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Vendor{}, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return domain.Vendor{}, fmt.Errorf("%w: vendor name required", store.ErrValidation)
	}
	created, err := s.repo.CreateVendor(ctx, vendorFromRequest("", req))
	if err != nil {
		return domain.Vendor{}, err
	}
	s.logAudit(ctx, "vendor_create", "vendor", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) GetVendor(ctx context.Context, id string) (domain.Vendor, error) {
	vendor, err := s.repo.GetVendorByID(ctx, id)
	if err != nil {
		return domain.Vendor{}, err
	}
	return *vendor, nil
}

func (s *Service) ListVendors(ctx context.Context) ([]domain.Vendor, error) {
	return s.repo.ListVendors(ctx)
}

func (s *Service) UpdateVendor(ctx context.Context, id string, req domain.VendorRequest) (domain.Vendor, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Vendor{}, err
	}
	updated, err := s.repo.UpdateVendor(ctx, vendorFromRequest(id, req))
	if err != nil {
		return domain.Vendor{}, err
	}
	s.logAudit(ctx, "vendor_update", "vendor", updated.ID, fmt.Sprintf("name=%s", updated.Name))
	return *updated, nil
}

func (s *Service) DeleteVendor(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteVendor(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "vendor_delete", "vendor", id, "")
	return nil
}

func vendorFromRequest(id string, req domain.VendorRequest) domain.Vendor {
	return domain.Vendor{
		ID:            id,
		Name:          strings.TrimSpace(req.Name),
		ContactPerson: strings.TrimSpace(req.ContactPerson),
		Phone:         strings.TrimSpace(req.Phone),
		Email:         strings.TrimSpace(req.Email),
		Address:       strings.TrimSpace(req.Address),
		GSTNumber:     strings.ToUpper(strings.TrimSpace(req.GSTNumber)),
	}
}

// --- customers ---

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (domain.Customer, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Customer{}, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return domain.Customer{}, fmt.Errorf("%w: customer name required", store.ErrValidation)
	}
	created, err := s.repo.CreateCustomer(ctx, customerFromRequest("", req))
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_create", "customer", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerRequest) (domain.Customer, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Customer{}, err
	}
	updated, err := s.repo.UpdateCustomer(ctx, customerFromRequest(id, req))
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_update", "customer", updated.ID, fmt.Sprintf("name=%s", updated.Name))
	return *updated, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "customer_delete", "customer", id, "")
	return nil
}

func customerFromRequest(id string, req domain.CustomerRequest) domain.Customer {
	return domain.Customer{
		ID:        id,
		Name:      strings.TrimSpace(req.Name),
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		Address:   strings.TrimSpace(req.Address),
		GSTNumber: strings.ToUpper(strings.TrimSpace(req.GSTNumber)),
	}
}

// --- products ---

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductRequest) (domain.Product, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Product{}, err
	}

	product, err := productFromRequest("", req)
	if err != nil {
		return domain.Product{}, err
	}
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_create", "product", created.ID,
		fmt.Sprintf("name=%s,stock=%d,selling=%s", created.Name, created.StockQuantity, created.SellingPrice))
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductRequest) (domain.Product, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	product, err := productFromRequest(id, req)
	if err != nil {
		return domain.Product{}, err
	}
	// Optional fields keep their stored values when the request omits them.
	if req.StockQuantity == nil {
		product.StockQuantity = existing.StockQuantity
	}
	if req.LowStockThreshold == nil {
		product.LowStockThreshold = existing.LowStockThreshold
	}
	if req.WholesalePrice == nil {
		product.WholesalePrice = existing.WholesalePrice
	}
	if req.GSTPercentage == nil {
		product.GSTPercentage = existing.GSTPercentage
	}

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_update", "product", updated.ID,
		fmt.Sprintf("name=%s,stock=%d,selling=%s", updated.Name, updated.StockQuantity, updated.SellingPrice))
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

func productFromRequest(id string, req domain.ProductRequest) (domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("%w: product name required", store.ErrValidation)
	}
	if req.PurchasePrice.IsNegative() || req.SellingPrice.IsNegative() {
		return domain.Product{}, fmt.Errorf("%w: prices must not be negative", store.ErrValidation)
	}

	product := domain.Product{
		ID:            id,
		Name:          name,
		Description:   strings.TrimSpace(req.Description),
		SKU:           strings.ToUpper(strings.TrimSpace(req.SKU)),
		Barcode:       strings.TrimSpace(req.Barcode),
		PurchasePrice: req.PurchasePrice,
		SellingPrice:  req.SellingPrice,
		HSNCode:       strings.TrimSpace(req.HSNCode),
		CategoryID:    strings.TrimSpace(req.CategoryID),
		VendorID:      strings.TrimSpace(req.VendorID),
	}
	if req.WholesalePrice != nil {
		if req.WholesalePrice.IsNegative() {
			return domain.Product{}, fmt.Errorf("%w: wholesale price must not be negative", store.ErrValidation)
		}
		product.WholesalePrice = *req.WholesalePrice
	} else {
		product.WholesalePrice = req.SellingPrice
	}
	if req.StockQuantity != nil {
		if *req.StockQuantity < 0 {
			return domain.Product{}, fmt.Errorf("%w: stock quantity must not be negative", store.ErrValidation)
		}
		product.StockQuantity = *req.StockQuantity
	}
	if req.LowStockThreshold != nil {
		if *req.LowStockThreshold < 0 {
			return domain.Product{}, fmt.Errorf("%w: low stock threshold must not be negative", store.ErrValidation)
		}
		product.LowStockThreshold = *req.LowStockThreshold
	}
	if req.GSTPercentage != nil {
		if req.GSTPercentage.IsNegative() || req.GSTPercentage.GreaterThan(decimal.NewFromInt(100)) {
			return domain.Product{}, fmt.Errorf("%w: gst percentage must be between 0 and 100", store.ErrValidation)
		}
		product.GSTPercentage = *req.GSTPercentage
	}
	return product, nil
}
