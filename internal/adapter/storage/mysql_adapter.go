package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/coffee-order/internal/core/domain"
	"github.com/rl1809/coffee-order/internal/port"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          CHAR(36)      NOT NULL PRIMARY KEY,
		name        VARCHAR(128)  NOT NULL,
		description VARCHAR(512)  NOT NULL,
		category    VARCHAR(64)   NOT NULL DEFAULT '',
		image_url   VARCHAR(512)  NOT NULL DEFAULT '',
		base_price  DECIMAL(12,2) NOT NULL,
		currency    CHAR(3)       NOT NULL,
		available   BOOLEAN       NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS product_variations (
		id               CHAR(36)      NOT NULL PRIMARY KEY,
		product_id       CHAR(36)      NOT NULL,
		name             VARCHAR(128)  NOT NULL,
		price_adjustment DECIMAL(12,2) NOT NULL,
		currency         CHAR(3)       NOT NULL,
		INDEX idx_variations_product (product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id                     CHAR(36)      NOT NULL PRIMARY KEY,
		user_id                VARCHAR(256)  NOT NULL,
		total_amount           DECIMAL(12,2) NOT NULL,
		currency               CHAR(3)       NOT NULL,
		status                 VARCHAR(16)   NOT NULL,
		payment_transaction_id VARCHAR(128)  NOT NULL DEFAULT '',
		version                INT           NOT NULL DEFAULT 0,
		created_at             DATETIME(6)   NOT NULL,
		updated_at             DATETIME(6)   NOT NULL,
		INDEX idx_orders_user (user_id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id                  CHAR(36)      NOT NULL PRIMARY KEY,
		order_id            CHAR(36)      NOT NULL,
		position            INT           NOT NULL,
		product_id          CHAR(36)      NOT NULL,
		product_name        VARCHAR(128)  NOT NULL,
		product_description VARCHAR(512)  NOT NULL,
		variation_name      VARCHAR(128)  NOT NULL DEFAULT '',
		unit_price          DECIMAL(12,2) NOT NULL,
		currency            CHAR(3)       NOT NULL,
		quantity            INT           NOT NULL,
		subtotal            DECIMAL(12,2) NOT NULL,
		INDEX idx_items_order (order_id, position),
		CONSTRAINT fk_items_order FOREIGN KEY (order_id) REFERENCES orders (id) ON DELETE CASCADE
	)`,
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// EnsureSchema creates missing tables. The driver runs one statement per Exec.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// SeedCatalog inserts products and variations that are not stored yet.
func (m *MySQLAdapter) SeedCatalog(ctx context.Context, products []domain.Product) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, p := range products {
		_, err := tx.ExecContext(ctx, `
			INSERT IGNORE INTO products (id, name, description, category, image_url, base_price, currency, available)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID.String(), p.Name, p.Description, p.Category, p.ImageURL,
			p.BasePrice.Amount(), p.BasePrice.Currency(), p.Available,
		)
		if err != nil {
			return fmt.Errorf("insert product %s: %w", p.ID, err)
		}
		for _, v := range p.Variations {
			_, err := tx.ExecContext(ctx, `
				INSERT IGNORE INTO product_variations (id, product_id, name, price_adjustment, currency)
				VALUES (?, ?, ?, ?, ?)`,
				v.ID.String(), p.ID.String(), v.Name, v.PriceAdjustment.Amount(), v.PriceAdjustment.Currency(),
			)
			if err != nil {
				return fmt.Errorf("insert variation %s: %w", v.ID, err)
			}
		}
	}
	return tx.Commit()
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	p, err := scanProduct(m.db.QueryRowContext(ctx, `
		SELECT id, name, description, category, image_url, base_price, currency, available
		FROM products WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("product %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}

	variations, err := m.variations(ctx, `WHERE product_id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	p.Variations = variations[p.ID]
	return p, nil
}

func (m *MySQLAdapter) GetVariation(ctx context.Context, id uuid.UUID) (*domain.Variation, error) {
	byProduct, err := m.variations(ctx, `WHERE id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	for _, vs := range byProduct {
		return &vs[0], nil
	}
	return nil, domain.NotFound("product variation %s not found", id)
}

func (m *MySQLAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, description, category, image_url, base_price, currency, available
		FROM products WHERE available = TRUE ORDER BY category, name`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	variations, err := m.variations(ctx, ``)
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Variations = variations[products[i].ID]
	}
	return products, nil
}

func (m *MySQLAdapter) variations(ctx context.Context, where string, args ...any) (map[uuid.UUID][]domain.Variation, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, product_id, name, price_adjustment, currency
		FROM product_variations `+where+` ORDER BY name`, args...)
	if err != nil {
		return nil, fmt.Errorf("query variations: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]domain.Variation)
	for rows.Next() {
		var (
			id, productID, currency string
			v                       domain.Variation
			adjustment              decimal.Decimal
		)
		if err := rows.Scan(&id, &productID, &v.Name, &adjustment, &currency); err != nil {
			return nil, fmt.Errorf("scan variation: %w", err)
		}
		if v.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("variation id: %w", err)
		}
		if v.ProductID, err = uuid.Parse(productID); err != nil {
			return nil, fmt.Errorf("variation product id: %w", err)
		}
		if v.PriceAdjustment, err = domain.NewMoney(adjustment, currency); err != nil {
			return nil, fmt.Errorf("variation %s price: %w", id, err)
		}
		out[v.ProductID] = append(out[v.ProductID], v)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p            domain.Product
		id, currency string
		price        decimal.Decimal
	)
	if err := row.Scan(&id, &p.Name, &p.Description, &p.Category, &p.ImageURL, &price, &currency, &p.Available); err != nil {
		return nil, err
	}
	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("product id: %w", err)
	}
	if p.BasePrice, err = domain.NewMoney(price, currency); err != nil {
		return nil, fmt.Errorf("product %s price: %w", id, err)
	}
	return &p, nil
}

const orderColumns = `id, user_id, currency, status, payment_transaction_id, version, created_at, updated_at`

func (m *MySQLAdapter) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	orders, err := m.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, domain.NotFound("order %s not found", id)
	}
	return orders[0], nil
}

func (m *MySQLAdapter) GetAll(ctx context.Context) ([]*domain.Order, error) {
	return m.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at ASC`)
}

func (m *MySQLAdapter) GetByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	return m.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

func (m *MySQLAdapter) queryOrders(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var states []domain.OrderState
	for rows.Next() {
		var (
			s      domain.OrderState
			id     string
			status string
		)
		if err := rows.Scan(&id, &s.UserID, &s.Currency, &status, &s.PaymentTransactionID, &s.Version, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("order id: %w", err)
		}
		s.Status = domain.OrderStatus(status)
		states = append(states, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(states) == 0 {
		return nil, nil
	}

	ids := make([]any, len(states))
	for i, s := range states {
		ids[i] = s.ID.String()
	}
	items, err := m.orderItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	orders := make([]*domain.Order, 0, len(states))
	for _, s := range states {
		s.Items = items[s.ID]
		o, err := domain.RestoreOrder(s)
		if err != nil {
			return nil, fmt.Errorf("restore order %s: %w", s.ID, err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (m *MySQLAdapter) orderItems(ctx context.Context, orderIDs []any) (map[uuid.UUID][]domain.OrderItem, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(orderIDs)), ",")
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, product_description, variation_name, unit_price, currency, quantity
		FROM order_items WHERE order_id IN (`+placeholders+`) ORDER BY order_id, position`, orderIDs...)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]domain.OrderItem)
	for rows.Next() {
		var (
			id, orderID, productID, name, description, variation, currency string
			unitPrice                                                      decimal.Decimal
			quantity                                                       int
		)
		if err := rows.Scan(&id, &orderID, &productID, &name, &description, &variation, &unitPrice, &currency, &quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item, err := restoreItem(id, orderID, productID, name, description, variation, unitPrice, currency, quantity)
		if err != nil {
			return nil, fmt.Errorf("restore order item %s: %w", id, err)
		}
		out[item.OrderID()] = append(out[item.OrderID()], item)
	}
	return out, rows.Err()
}

func restoreItem(id, orderID, productID, name, description, variation string, unitPrice decimal.Decimal, currency string, quantity int) (domain.OrderItem, error) {
	itemUUID, err := uuid.Parse(id)
	if err != nil {
		return domain.OrderItem{}, err
	}
	orderUUID, err := uuid.Parse(orderID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	productUUID, err := uuid.Parse(productID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	price, err := domain.NewMoney(unitPrice, currency)
	if err != nil {
		return domain.OrderItem{}, err
	}
	snapshot, err := domain.NewProductSnapshot(productUUID, name, description, price, variation)
	if err != nil {
		return domain.OrderItem{}, err
	}
	qty, err := domain.NewQuantity(quantity)
	if err != nil {
		return domain.OrderItem{}, err
	}
	return domain.RestoreOrderItem(itemUUID, orderUUID, snapshot, qty)
}

// Begin starts a unit of work on one MySQL transaction.
func (m *MySQLAdapter) Begin(ctx context.Context) (port.UnitOfWork, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &mysqlUnitOfWork{tx: tx}, nil
}

// sqlTx is the part of *sql.Tx a unit of work uses.
type sqlTx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

type mysqlUnitOfWork struct {
	tx   sqlTx
	done bool
}

func (u *mysqlUnitOfWork) Add(ctx context.Context, o *domain.Order) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total_amount, currency, status, payment_transaction_id, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID().String(), o.UserID(), o.TotalAmount().Amount(), o.Currency(), string(o.Status()),
		o.PaymentTransactionID(), o.Version(), o.CreatedAt(), o.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range o.Items() {
		snap := it.Snapshot()
		_, err := u.tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, position, product_id, product_name, product_description,
				variation_name, unit_price, currency, quantity, subtotal)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID().String(), o.ID().String(), i, snap.ProductID().String(), snap.Name(), snap.Description(),
			snap.VariationName(), snap.UnitPrice().Amount(), snap.UnitPrice().Currency(),
			it.Quantity().Value(), it.Subtotal().Amount(),
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// Update writes the order's mutable columns if the stored row is still at
// the version the order was loaded with.
func (u *mysqlUnitOfWork) Update(ctx context.Context, o *domain.Order) error {
	result, err := u.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, payment_transaction_id = ?, total_amount = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(o.Status()), o.PaymentTransactionID(), o.TotalAmount().Amount(), o.Version(), o.UpdatedAt(),
		o.ID().String(), o.Version()-1,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order: rows affected: %w", err)
	}
	if rows == 0 {
		return port.ErrConcurrentUpdate
	}
	return nil
}

func (u *mysqlUnitOfWork) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	u.done = true
	return nil
}

func (u *mysqlUnitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	return u.tx.Rollback()
}

// DefaultCatalog is the menu loaded into an empty database.
func DefaultCatalog() []domain.Product {
	usd := func(amount string) domain.Money { return domain.MustMoney(amount, domain.DefaultCurrency) }
	product := func(id, name, description, category, price string, variations ...domain.Variation) domain.Product {
		p := domain.Product{
			ID:          uuid.MustParse(id),
			Name:        name,
			Description: description,
			Category:    category,
			BasePrice:   usd(price),
			Available:   true,
		}
		for _, v := range variations {
			v.ProductID = p.ID
			p.Variations = append(p.Variations, v)
		}
		return p
	}
	variation := func(id, name, adjustment string) domain.Variation {
		return domain.Variation{ID: uuid.MustParse(id), Name: name, PriceAdjustment: usd(adjustment)}
	}

	return []domain.Product{
		product("10000000-0000-0000-0000-000000000001", "Latte", "Smooth latte with steamed milk", "Coffee", "4.00",
			variation("30000000-0000-0000-0000-000000000001", "Pumpkin Spice", "0.50"),
			variation("30000000-0000-0000-0000-000000000002", "Vanilla", "0.30"),
			variation("30000000-0000-0000-0000-000000000003", "Hazelnut", "0.40")),
		product("10000000-0000-0000-0000-000000000002", "Espresso", "Rich and bold espresso shot", "Coffee", "2.50",
			variation("30000000-0000-0000-0000-000000000004", "Single Shot", "0.00"),
			variation("30000000-0000-0000-0000-000000000005", "Double Shot", "1.00")),
		product("10000000-0000-0000-0000-000000000003", "Macchiato", "Espresso with a dollop of foam", "Coffee", "4.00",
			variation("30000000-0000-0000-0000-000000000006", "Caramel", "0.50"),
			variation("30000000-0000-0000-0000-000000000007", "Vanilla", "0.30")),
		product("10000000-0000-0000-0000-000000000004", "Iced Coffee", "Refreshing cold brewed coffee", "Coffee", "3.50",
			variation("30000000-0000-0000-0000-000000000008", "Regular", "0.00"),
			variation("30000000-0000-0000-0000-000000000009", "Sweetened", "0.30"),
			variation("30000000-0000-0000-0000-00000000000a", "Extra Ice", "0.20")),
		product("20000000-0000-0000-0000-000000000001", "Donuts", "Fresh baked donuts", "Food", "2.00",
			variation("30000000-0000-0000-0000-00000000000b", "Glazed", "0.00"),
			variation("30000000-0000-0000-0000-00000000000c", "Jelly", "0.30"),
			variation("30000000-0000-0000-0000-00000000000d", "Boston Cream", "0.50")),
	}
}
