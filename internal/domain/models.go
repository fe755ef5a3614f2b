package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type CategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Vendor struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ContactPerson string    `json:"contact_person,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Email         string    `json:"email,omitempty"`
	Address       string    `json:"address,omitempty"`
	GSTNumber     string    `json:"gst_number,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type VendorRequest struct {
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	Address       string `json:"address,omitempty"`
	GSTNumber     string `json:"gst_number,omitempty"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	GSTNumber string    `json:"gst_number,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CustomerRequest struct {
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
	GSTNumber string `json:"gst_number,omitempty"`
}

type Product struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	SKU               string          `json:"sku,omitempty"`
	Barcode           string          `json:"barcode,omitempty"`
	PurchasePrice     decimal.Decimal `json:"purchase_price"`
	SellingPrice      decimal.Decimal `json:"selling_price"`
	WholesalePrice    decimal.Decimal `json:"wholesale_price"`
	StockQuantity     int             `json:"stock_quantity"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	GSTPercentage     decimal.Decimal `json:"gst_percentage"`
	HSNCode           string          `json:"hsn_code,omitempty"`
	CategoryID        string          `json:"category_id,omitempty"`
	CategoryName      string          `json:"category_name,omitempty"`
	VendorID          string          `json:"vendor_id,omitempty"`
	VendorName        string          `json:"vendor_name,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type ProductRequest struct {
	Name              string           `json:"name"`
	Description       string           `json:"description,omitempty"`
	SKU               string           `json:"sku,omitempty"`
	Barcode           string           `json:"barcode,omitempty"`
	PurchasePrice     decimal.Decimal  `json:"purchase_price"`
	SellingPrice      decimal.Decimal  `json:"selling_price"`
	WholesalePrice    *decimal.Decimal `json:"wholesale_price,omitempty"`
	StockQuantity     *int             `json:"stock_quantity,omitempty"`
	LowStockThreshold *int             `json:"low_stock_threshold,omitempty"`
	GSTPercentage     *decimal.Decimal `json:"gst_percentage,omitempty"`
	HSNCode           string           `json:"hsn_code,omitempty"`
	CategoryID        string           `json:"category_id,omitempty"`
	VendorID          string           `json:"vendor_id,omitempty"`
}

// ProductFilter narrows product listings. LowStock selects products at or
// below their own low-stock threshold.
type ProductFilter struct {
	CategoryID string
	VendorID   string
	LowStock   bool
}

type SaleItem struct {
	ID            string          `json:"id"`
	SaleID        string          `json:"sale_id"`
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name,omitempty"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	GSTPercentage decimal.Decimal `json:"gst_percentage"`
	GSTAmount     decimal.Decimal `json:"gst_amount"`
	Discount      decimal.Decimal `json:"discount"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

type Sale struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerID    string          `json:"customer_id,omitempty"`
	CustomerName  string          `json:"customer_name,omitempty"`
	SaleDate      time.Time       `json:"sale_date"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	GSTAmount     decimal.Decimal `json:"gst_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentStatus string          `json:"payment_status"`
	PaymentMethod string          `json:"payment_method"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []SaleItem      `json:"items,omitempty"`
}

type SaleItemRequest struct {
	ProductID     string           `json:"product_id"`
	Quantity      int              `json:"quantity"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	Discount      *decimal.Decimal `json:"discount,omitempty"`
	GSTPercentage *decimal.Decimal `json:"gst_percentage,omitempty"`
}

type SaleCreateRequest struct {
	CustomerID    string            `json:"customer_id,omitempty"`
	SaleDate      string            `json:"sale_date,omitempty"`
	Discount      decimal.Decimal   `json:"discount"`
	PaymentStatus string            `json:"payment_status,omitempty"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	InvoiceNumber string            `json:"invoice_number,omitempty"`
	Items         []SaleItemRequest `json:"items"`
}

type SaleCreateResponse struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// SaleFilter narrows sale listings by customer and inclusive date range.
type SaleFilter struct {
	CustomerID string
	From       *time.Time
	To         *time.Time
}

type PurchaseItem struct {
	ID          string          `json:"id"`
	PurchaseID  string          `json:"purchase_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	GSTAmount   decimal.Decimal `json:"gst_amount"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type Purchase struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	VendorID      string          `json:"vendor_id"`
	VendorName    string          `json:"vendor_name,omitempty"`
	PurchaseDate  time.Time       `json:"purchase_date"`
	GSTAmount     decimal.Decimal `json:"gst_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentStatus string          `json:"payment_status"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []PurchaseItem  `json:"items,omitempty"`
}

type PurchaseItemRequest struct {
	ProductID     string           `json:"product_id,omitempty"`
	ProductName   string           `json:"product_name,omitempty"`
	Quantity      int              `json:"quantity"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	SellingPrice  *decimal.Decimal `json:"selling_price,omitempty"`
	GSTAmount     *decimal.Decimal `json:"gst_amount,omitempty"`
	GSTPercentage *decimal.Decimal `json:"gst_percentage,omitempty"`
	HSNCode       string           `json:"hsn_code,omitempty"`
}

type PurchaseCreateRequest struct {
	VendorID      string                `json:"vendor_id"`
	PurchaseDate  string                `json:"purchase_date,omitempty"`
	PaymentStatus string                `json:"payment_status,omitempty"`
	PaymentMethod string                `json:"payment_method,omitempty"`
	Notes         string                `json:"notes,omitempty"`
	InvoiceNumber string                `json:"invoice_number,omitempty"`
	Items         []PurchaseItemRequest `json:"items"`
}

type PurchaseCreateResponse struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// PurchaseFilter narrows purchase listings by vendor and inclusive date range.
type PurchaseFilter struct {
	VendorID string
	From     *time.Time
	To       *time.Time
}

type ReportBucket struct {
	Period      string          `json:"period"`
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalGST    decimal.Decimal `json:"total_gst"`
}

type ReportSummary struct {
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalGST    decimal.Decimal `json:"total_gst"`
}

type PeriodReport struct {
	Type    string         `json:"type"`
	Buckets []ReportBucket `json:"buckets"`
	Summary ReportSummary  `json:"summary"`
}

type StockReportLine struct {
	ProductID     string          `json:"product_id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku,omitempty"`
	StockQuantity int             `json:"stock_quantity"`
	Threshold     int             `json:"low_stock_threshold"`
	LowStock      bool            `json:"low_stock"`
	StockValue    decimal.Decimal `json:"stock_value"`
}

type StockReport struct {
	GeneratedAt   string            `json:"generated_at"`
	Lines         []StockReportLine `json:"lines"`
	LowStockCount int               `json:"low_stock_count"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor identifies the authenticated caller. It travels in the request
// context and is consulted for authorization and audit attribution.
type Actor struct {
	Username string
	Role     string
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type User struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is the persistence shape for credentials. Password holds the
// bcrypt hash.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Backup struct {
	ID        string    `json:"id"`
	FileName  string    `json:"file_name"`
	SizeBytes int64     `json:"size_bytes"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type RestoreRequest struct {
	FileName string `json:"file_name"`
}

type Scan struct {
	ID            string    `json:"id"`
	FileName      string    `json:"file_name"`
	Kind          string    `json:"kind"`
	ExtractedText string    `json:"extracted_text,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	PaymentStatusPending = "pending"
	PaymentStatusPartial = "partial"
	PaymentStatusPaid    = "paid"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

const (
	BackupStatusCompleted = "completed"
	BackupStatusFailed    = "failed"
)

const (
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
)

const (
	ReportDaily   = "daily"
	ReportMonthly = "monthly"
	ReportYearly  = "yearly"
)
