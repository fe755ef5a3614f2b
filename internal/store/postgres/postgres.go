package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"billstock/backend/internal/domain"
	"billstock/backend/internal/store"
	"billstock/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- categories ---

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, fmt.Errorf("%w: category name required", store.ErrValidation)
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, description)
		VALUES ($1,$2,$3)
	`, category.ID, category.Name, nullIfEmpty(category.Description))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: category %q", store.ErrConflict, category.Name)
		}
		return nil, err
	}
	created := category
	return &created, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, '')
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, fmt.Errorf("%w: category name required", store.ErrValidation)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories
		SET name = $2, description = $3
		WHERE id = $1
	`, category.ID, category.Name, nullIfEmpty(category.Description))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: category %q", store.ErrConflict, category.Name)
		}
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := category
	return &updated, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: category has products", store.ErrReferenced)
		}
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- vendors ---

func (s *Store) CreateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	if vendor.Name == "" {
		return nil, fmt.Errorf("%w: vendor name required", store.ErrValidation)
	}
	if vendor.ID == "" {
		vendor.ID = xid.New("vend")
	}
	now := time.Now().UTC()
	vendor.CreatedAt = now
	vendor.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendors (id, name, contact_person, phone, email, address, gst_number, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, vendor.ID, vendor.Name, nullIfEmpty(vendor.ContactPerson), nullIfEmpty(vendor.Phone),
		nullIfEmpty(vendor.Email), nullIfEmpty(vendor.Address), nullIfEmpty(vendor.GSTNumber),
		vendor.CreatedAt, vendor.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: vendor %q", store.ErrConflict, vendor.Name)
		}
		return nil, err
	}
	created := vendor
	return &created, nil
}

const vendorColumns = `id, name, COALESCE(contact_person, ''), COALESCE(phone, ''), COALESCE(email, ''),
	COALESCE(address, ''), COALESCE(gst_number, ''), created_at, updated_at`

func scanVendor(row interface{ Scan(...any) error }) (domain.Vendor, error) {
	var v domain.Vendor
	err := row.Scan(&v.ID, &v.Name, &v.ContactPerson, &v.Phone, &v.Email, &v.Address, &v.GSTNumber, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func (s *Store) GetVendorByID(ctx context.Context, id string) (*domain.Vendor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = $1`, id)
	vendor, err := scanVendor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &vendor, nil
}

func (s *Store) FindVendorByName(ctx context.Context, name string) (*domain.Vendor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE lower(name) = lower($1)`, name)
	vendor, err := scanVendor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &vendor, nil
}

func (s *Store) ListVendors(ctx context.Context) ([]domain.Vendor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+vendorColumns+` FROM vendors ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vendors := make([]domain.Vendor, 0, 32)
	for rows.Next() {
		vendor, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		vendors = append(vendors, vendor)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vendors, nil
}

func (s *Store) UpdateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	if vendor.Name == "" {
		return nil, fmt.Errorf("%w: vendor name required", store.ErrValidation)
	}
	vendor.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE vendors
		SET name = $2, contact_person = $3, phone = $4, email = $5, address = $6, gst_number = $7, updated_at = $8
		WHERE id = $1
	`, vendor.ID, vendor.Name, nullIfEmpty(vendor.ContactPerson), nullIfEmpty(vendor.Phone),
		nullIfEmpty(vendor.Email), nullIfEmpty(vendor.Address), nullIfEmpty(vendor.GSTNumber), vendor.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: vendor %q", store.ErrConflict, vendor.Name)
		}
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := vendor
	return &updated, nil
}

func (s *Store) DeleteVendor(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vendors WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: vendor has products or purchases", store.ErrReferenced)
		}
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- customers ---

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, fmt.Errorf("%w: customer name required", store.ErrValidation)
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	now := time.Now().UTC()
	customer.CreatedAt = now
	customer.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, address, gst_number, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email),
		nullIfEmpty(customer.Address), nullIfEmpty(customer.GSTNumber), customer.CreatedAt, customer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: customer %q", store.ErrConflict, customer.Name)
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

const customerColumns = `id, name, COALESCE(phone, ''), COALESCE(email, ''), COALESCE(address, ''),
	COALESCE(gst_number, ''), created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.GSTNumber, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	customer, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, fmt.Errorf("%w: customer name required", store.ErrValidation)
	}
	customer.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, email = $4, address = $5, gst_number = $6, updated_at = $7
		WHERE id = $1
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email),
		nullIfEmpty(customer.Address), nullIfEmpty(customer.GSTNumber), customer.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: customer has sales", store.ErrReferenced)
		}
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- products ---

const productColumns = `p.id, p.name, COALESCE(p.description, ''), COALESCE(p.sku, ''), COALESCE(p.barcode, ''),
	p.purchase_price, p.selling_price, p.wholesale_price, p.stock_quantity, p.low_stock_threshold,
	p.gst_percentage, COALESCE(p.hsn_code, ''), COALESCE(p.category_id, ''), COALESCE(c.name, ''),
	COALESCE(p.vendor_id, ''), COALESCE(v.name, ''), p.created_at, p.updated_at`

const productJoins = `
	FROM products p
	LEFT JOIN categories c ON c.id = p.category_id
	LEFT JOIN vendors v ON v.id = p.vendor_id`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.SKU, &p.Barcode,
		&p.PurchasePrice, &p.SellingPrice, &p.WholesalePrice, &p.StockQuantity, &p.LowStockThreshold,
		&p.GSTPercentage, &p.HSNCode, &p.CategoryID, &p.CategoryName,
		&p.VendorID, &p.VendorName, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" {
		return nil, fmt.Errorf("%w: product name required", store.ErrValidation)
	}
	if product.StockQuantity < 0 {
		return nil, fmt.Errorf("%w: stock quantity must not be negative", store.ErrValidation)
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, sku, barcode, purchase_price, selling_price,
			wholesale_price, stock_quantity, low_stock_threshold, gst_percentage, hsn_code,
			category_id, vendor_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, product.ID, product.Name, nullIfEmpty(product.Description), nullIfEmpty(product.SKU),
		nullIfEmpty(product.Barcode), product.PurchasePrice, product.SellingPrice,
		product.WholesalePrice, product.StockQuantity, product.LowStockThreshold,
		product.GSTPercentage, nullIfEmpty(product.HSNCode),
		nullIfEmpty(product.CategoryID), nullIfEmpty(product.VendorID),
		product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product sku or barcode", store.ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: category or vendor", store.ErrNotFound)
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+productJoins+` WHERE p.id = $1`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) FindProductByName(ctx context.Context, name string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+productJoins+` WHERE lower(p.name) = lower($1)`, name)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + productJoins + ` WHERE 1=1`
	args := make([]any, 0, 2)
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		query += fmt.Sprintf(" AND p.category_id = $%d", len(args))
	}
	if filter.VendorID != "" {
		args = append(args, filter.VendorID)
		query += fmt.Sprintf(" AND p.vendor_id = $%d", len(args))
	}
	if filter.LowStock {
		query += " AND p.stock_quantity <= p.low_stock_threshold"
	}
	query += " ORDER BY p.name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" {
		return nil, fmt.Errorf("%w: product name required", store.ErrValidation)
	}
	if product.StockQuantity < 0 {
		return nil, fmt.Errorf("%w: stock quantity must not be negative", store.ErrValidation)
	}
	product.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, sku = $4, barcode = $5, purchase_price = $6,
			selling_price = $7, wholesale_price = $8, stock_quantity = $9, low_stock_threshold = $10,
			gst_percentage = $11, hsn_code = $12, category_id = $13, vendor_id = $14, updated_at = $15
		WHERE id = $1
	`, product.ID, product.Name, nullIfEmpty(product.Description), nullIfEmpty(product.SKU),
		nullIfEmpty(product.Barcode), product.PurchasePrice, product.SellingPrice,
		product.WholesalePrice, product.StockQuantity, product.LowStockThreshold,
		product.GSTPercentage, nullIfEmpty(product.HSNCode),
		nullIfEmpty(product.CategoryID), nullIfEmpty(product.VendorID), product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product sku or barcode", store.ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: category or vendor", store.ErrNotFound)
		}
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: product has sales or purchases", store.ErrReferenced)
		}
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- sales ---

// CreateSale runs the stock check-and-decrement and the document insert in a
// single serializable transaction. Product rows are locked FOR UPDATE before
// the stock check so concurrent sales of the same product serialize; the
// second one sees the decremented quantity and fails cleanly when it would
// go negative.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, fmt.Errorf("%w: sale requires at least one item", store.ErrValidation)
	}
	if sale.InvoiceNumber == "" {
		return nil, fmt.Errorf("%w: invoice number required", store.ErrValidation)
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	productIDs := uniqueProductIDs(len(sale.Items), func(i int) string { return sale.Items[i].ProductID })

	stockRows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, stock_quantity
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, productIDs)
	if err != nil {
		return nil, err
	}
	type productState struct {
		name  string
		stock int
	}
	states := make(map[string]productState, len(productIDs))
	for stockRows.Next() {
		var id, name string
		var stock int
		if err := stockRows.Scan(&id, &name, &stock); err != nil {
			_ = stockRows.Close()
			return nil, err
		}
		states[id] = productState{name: name, stock: stock}
	}
	if err := stockRows.Err(); err != nil {
		_ = stockRows.Close()
		return nil, err
	}
	_ = stockRows.Close()

	demanded := make(map[string]int, len(productIDs))
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
		}
		state, exists := states[item.ProductID]
		if !exists {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		demanded[item.ProductID] += item.Quantity
		if demanded[item.ProductID] > state.stock {
			return nil, fmt.Errorf("%w: %s has %d, requested %d",
				store.ErrInsufficientStock, state.name, state.stock, demanded[item.ProductID])
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

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (id, invoice_number, customer_id, sale_date, subtotal, discount,
			gst_amount, total_amount, payment_status, payment_method, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, sale.ID, sale.InvoiceNumber, nullIfEmpty(sale.CustomerID), sale.SaleDate,
		sale.Subtotal, sale.Discount, sale.GSTAmount, sale.TotalAmount,
		sale.PaymentStatus, sale.PaymentMethod, nullIfEmpty(sale.Notes), sale.CreatedAt, sale.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: invoice number %q", store.ErrConflict, sale.InvoiceNumber)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, sale.CustomerID)
		}
		return nil, err
	}

	for i := range sale.Items {
		item := &sale.Items[i]
		if item.ID == "" {
			item.ID = xid.New("sitem")
		}
		item.SaleID = sale.ID
		item.ProductName = states[item.ProductID].name

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, quantity, unit_price,
				gst_percentage, gst_amount, discount, total_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, item.ID, item.SaleID, item.ProductID, item.Quantity, item.UnitPrice,
			item.GSTPercentage, item.GSTAmount, item.Discount, item.TotalPrice)
		if err != nil {
			return nil, err
		}

		_, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $1, updated_at = $2
			WHERE id = $3
		`, item.Quantity, now, item.ProductID)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

const saleColumns = `s.id, s.invoice_number, COALESCE(s.customer_id, ''), COALESCE(c.name, ''), s.sale_date,
	s.subtotal, s.discount, s.gst_amount, s.total_amount, s.payment_status, s.payment_method,
	COALESCE(s.notes, ''), s.created_at, s.updated_at`

func scanSale(row interface{ Scan(...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(&sale.ID, &sale.InvoiceNumber, &sale.CustomerID, &sale.CustomerName, &sale.SaleDate,
		&sale.Subtotal, &sale.Discount, &sale.GSTAmount, &sale.TotalAmount,
		&sale.PaymentStatus, &sale.PaymentMethod, &sale.Notes, &sale.CreatedAt, &sale.UpdatedAt)
	return sale, err
}

func (s *Store) loadSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT si.id, si.sale_id, si.product_id, COALESCE(p.name, ''), si.quantity,
			si.unit_price, si.gst_percentage, si.gst_amount, si.discount, si.total_price
		FROM sale_items si
		LEFT JOIN products p ON p.id = si.product_id
		WHERE si.sale_id = $1
		ORDER BY si.id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName, &item.Quantity,
			&item.UnitPrice, &item.GSTPercentage, &item.GSTAmount, &item.Discount, &item.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales s
		LEFT JOIN customers c ON c.id = s.customer_id
		WHERE s.id = $1
	`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.Items, err = s.loadSaleItems(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) FindSaleByInvoice(ctx context.Context, invoiceNumber string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales s
		LEFT JOIN customers c ON c.id = s.customer_id
		WHERE s.invoice_number = $1
	`, invoiceNumber)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	query := `
		SELECT ` + saleColumns + `
		FROM sales s
		LEFT JOIN customers c ON c.id = s.customer_id
		WHERE 1=1`
	args := make([]any, 0, 3)
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		query += fmt.Sprintf(" AND s.customer_id = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND s.sale_date >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND s.sale_date <= $%d", len(args))
	}
	query += " ORDER BY s.sale_date DESC, s.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// --- purchases ---

// CreatePurchase mirrors CreateSale's transaction shape but increments stock
// and carries the received cost onto the product, last write wins.
func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if len(purchase.Items) == 0 {
		return nil, fmt.Errorf("%w: purchase requires at least one item", store.ErrValidation)
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var vendorName string
	err = pgTx.QueryRowContext(ctx, `SELECT name FROM vendors WHERE id = $1`, purchase.VendorID).Scan(&vendorName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: vendor %s", store.ErrNotFound, purchase.VendorID)
		}
		return nil, err
	}

	productIDs := uniqueProductIDs(len(purchase.Items), func(i int) string { return purchase.Items[i].ProductID })

	productRows, err := pgTx.QueryContext(ctx, `
		SELECT id, name
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, productIDs)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(productIDs))
	for productRows.Next() {
		var id, name string
		if err := productRows.Scan(&id, &name); err != nil {
			_ = productRows.Close()
			return nil, err
		}
		names[id] = name
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	for _, item := range purchase.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
		}
		if _, exists := names[item.ProductID]; !exists {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
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
	purchase.VendorName = vendorName

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO purchases (id, invoice_number, vendor_id, purchase_date, gst_amount, total_amount,
			payment_status, payment_method, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, purchase.ID, nullIfEmpty(purchase.InvoiceNumber), purchase.VendorID, purchase.PurchaseDate,
		purchase.GSTAmount, purchase.TotalAmount, purchase.PaymentStatus, nullIfEmpty(purchase.PaymentMethod),
		nullIfEmpty(purchase.Notes), purchase.CreatedAt, purchase.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: invoice number %q", store.ErrConflict, purchase.InvoiceNumber)
		}
		return nil, err
	}

	for i := range purchase.Items {
		item := &purchase.Items[i]
		if item.ID == "" {
			item.ID = xid.New("pitem")
		}
		item.PurchaseID = purchase.ID
		item.ProductName = names[item.ProductID]

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO purchase_items (id, purchase_id, product_id, quantity, unit_price, gst_amount, total_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, item.ID, item.PurchaseID, item.ProductID, item.Quantity, item.UnitPrice, item.GSTAmount, item.TotalPrice)
		if err != nil {
			return nil, err
		}

		_, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity + $1, purchase_price = $2, updated_at = $3
			WHERE id = $4
		`, item.Quantity, item.UnitPrice, now, item.ProductID)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := purchase
	return &created, nil
}

const purchaseColumns = `pu.id, COALESCE(pu.invoice_number, ''), pu.vendor_id, COALESCE(v.name, ''), pu.purchase_date,
	pu.gst_amount, pu.total_amount, pu.payment_status, COALESCE(pu.payment_method, ''), COALESCE(pu.notes, ''),
	pu.created_at, pu.updated_at`

func scanPurchase(row interface{ Scan(...any) error }) (domain.Purchase, error) {
	var purchase domain.Purchase
	err := row.Scan(&purchase.ID, &purchase.InvoiceNumber, &purchase.VendorID, &purchase.VendorName,
		&purchase.PurchaseDate, &purchase.GSTAmount, &purchase.TotalAmount, &purchase.PaymentStatus, &purchase.PaymentMethod,
		&purchase.Notes, &purchase.CreatedAt, &purchase.UpdatedAt)
	return purchase, err
}

func (s *Store) GetPurchaseByID(ctx context.Context, id string) (*domain.Purchase, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases pu
		LEFT JOIN vendors v ON v.id = pu.vendor_id
		WHERE pu.id = $1
	`, id)
	purchase, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT pi.id, pi.purchase_id, pi.product_id, COALESCE(p.name, ''), pi.quantity,
			pi.unit_price, pi.gst_amount, pi.total_price
		FROM purchase_items pi
		LEFT JOIN products p ON p.id = pi.product_id
		WHERE pi.purchase_id = $1
		ORDER BY pi.id
	`, purchase.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseItem, 0, 8)
	for rows.Next() {
		var item domain.PurchaseItem
		if err := rows.Scan(&item.ID, &item.PurchaseID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.UnitPrice, &item.GSTAmount, &item.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	purchase.Items = items
	return &purchase, nil
}

func (s *Store) ListPurchases(ctx context.Context, filter domain.PurchaseFilter) ([]domain.Purchase, error) {
	query := `
		SELECT ` + purchaseColumns + `
		FROM purchases pu
		LEFT JOIN vendors v ON v.id = pu.vendor_id
		WHERE 1=1`
	args := make([]any, 0, 3)
	if filter.VendorID != "" {
		args = append(args, filter.VendorID)
		query += fmt.Sprintf(" AND pu.vendor_id = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND pu.purchase_date >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND pu.purchase_date <= $%d", len(args))
	}
	query += " ORDER BY pu.purchase_date DESC, pu.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, 64)
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, purchase)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return purchases, nil
}

// --- backups / scans ---

func (s *Store) CreateBackup(ctx context.Context, backup domain.Backup) (*domain.Backup, error) {
	if backup.ID == "" {
		backup.ID = xid.New("bkp")
	}
	if backup.CreatedAt.IsZero() {
		backup.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backups (id, file_name, size_bytes, status, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, backup.ID, backup.FileName, backup.SizeBytes, backup.Status, nullIfEmpty(backup.Notes), backup.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := backup
	return &created, nil
}

func (s *Store) ListBackups(ctx context.Context) ([]domain.Backup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_name, size_bytes, status, COALESCE(notes, ''), created_at
		FROM backups
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	backups := make([]domain.Backup, 0, 32)
	for rows.Next() {
		var b domain.Backup
		if err := rows.Scan(&b.ID, &b.FileName, &b.SizeBytes, &b.Status, &b.Notes, &b.CreatedAt); err != nil {
			return nil, err
		}
		backups = append(backups, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return backups, nil
}

func (s *Store) CreateScan(ctx context.Context, scan domain.Scan) (*domain.Scan, error) {
	if scan.ID == "" {
		scan.ID = xid.New("scan")
	}
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scans (id, file_name, kind, extracted_text, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, scan.ID, scan.FileName, scan.Kind, nullIfEmpty(scan.ExtractedText), scan.Status, scan.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := scan
	return &created, nil
}

// --- audit logs ---

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType,
		nullIfEmpty(entry.EntityID), nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	query := `
		SELECT id, actor_username, actor_role, action, entity_type, COALESCE(entity_id, ''), COALESCE(detail, ''), created_at
		FROM audit_logs
		WHERE 1=1`
	args := make([]any, 0, 3)
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: username %q", store.ErrConflict, user.Username)
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- helpers ---

func uniqueProductIDs(n int, at func(int) string) []string {
	seen := make(map[string]struct{}, n)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := at(i)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
