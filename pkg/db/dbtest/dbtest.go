// Package dbtest opens throwaway sqlite databases carrying the marketplace
// schema, for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// sqlite mirror of the goose migrations. Enum, uuid, numeric and jsonb
// columns are TEXT; array columns hold their postgres literal.
var schema = []string{
	`CREATE TABLE users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT,
	phone TEXT,
	role TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME,
	updated_at DATETIME
)`,
	`CREATE TABLE sellers (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	business_name TEXT NOT NULL,
	email TEXT,
	phone TEXT,
	status TEXT NOT NULL,
	is_verified INTEGER NOT NULL DEFAULT 0,
	commission_rate TEXT,
	created_at DATETIME,
	updated_at DATETIME
)`,
	`CREATE TABLE products (
	id TEXT PRIMARY KEY,
	seller_id TEXT NOT NULL,
	category_id TEXT,
	name TEXT NOT NULL,
	sku TEXT NOT NULL,
	images TEXT,
	price TEXT NOT NULL,
	tax_rate TEXT NOT NULL,
	stock_quantity INTEGER NOT NULL DEFAULT 0,
	sales_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	variants TEXT,
	created_at DATETIME,
	updated_at DATETIME
)`,
	`CREATE TABLE offers (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	value TEXT NOT NULL,
	min_order_value TEXT,
	max_discount_value TEXT,
	description TEXT,
	start_date DATETIME NOT NULL,
	end_date DATETIME NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	applicable_for TEXT NOT NULL,
	specific_users TEXT,
	specific_products TEXT,
	specific_categories TEXT,
	applicable_sellers TEXT,
	usage_limit INTEGER NOT NULL DEFAULT -1,
	per_user_limit INTEGER NOT NULL DEFAULT -1,
	usage_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME,
	updated_at DATETIME
)`,
	`CREATE TABLE offer_usages (
	id TEXT PRIMARY KEY,
	offer_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	last_used_at DATETIME NOT NULL,
	CONSTRAINT ux_offer_usages_offer_user UNIQUE (offer_id, user_id)
)`,
	`CREATE TABLE orders (
	id TEXT PRIMARY KEY,
	order_number TEXT NOT NULL,
	user_id TEXT NOT NULL,
	shipping_address TEXT NOT NULL,
	billing_address TEXT NOT NULL,
	payment TEXT NOT NULL,
	subtotal TEXT NOT NULL,
	tax TEXT NOT NULL,
	shipping_cost TEXT NOT NULL,
	discount TEXT NOT NULL,
	total TEXT NOT NULL,
	coupon_id TEXT,
	coupon_code TEXT,
	status TEXT NOT NULL,
	status_history TEXT NOT NULL DEFAULT '[]',
	notes TEXT,
	is_gift INTEGER NOT NULL DEFAULT 0,
	gift_message TEXT,
	estimated_delivery_date DATETIME,
	delivered_at DATETIME,
	cancelled_at DATETIME,
	cancellation_reason TEXT,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	is_settled INTEGER NOT NULL DEFAULT 0,
	invoice_number TEXT,
	invoice_url TEXT,
	invoice_generated_at DATETIME,
	created_at DATETIME,
	updated_at DATETIME
)`,
	`CREATE UNIQUE INDEX ux_orders_order_number ON orders (order_number)`,
	`CREATE UNIQUE INDEX ux_orders_invoice_number ON orders (invoice_number)`,
	`CREATE TABLE order_items (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	product_id TEXT NOT NULL,
	variant_id TEXT,
	seller_id TEXT NOT NULL,
	category_id TEXT,
	name TEXT NOT NULL,
	sku TEXT NOT NULL,
	image TEXT,
	price TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	tax TEXT NOT NULL,
	total TEXT NOT NULL,
	seller_amount TEXT NOT NULL,
	platform_fee TEXT NOT NULL,
	status TEXT NOT NULL,
	status_history TEXT NOT NULL DEFAULT '[]',
	tracking_number TEXT,
	tracking_url TEXT,
	shipping_provider TEXT,
	shipped_at DATETIME,
	delivered_at DATETIME,
	cancelled_at DATETIME,
	cancellation_reason TEXT,
	stock_restored INTEGER NOT NULL DEFAULT 0,
	return_requested INTEGER NOT NULL DEFAULT 0,
	return_requested_at DATETIME,
	return_reason TEXT,
	return_id TEXT,
	is_settled INTEGER NOT NULL DEFAULT 0,
	settlement_id TEXT,
	created_at DATETIME,
	updated_at DATETIME
)`,
	`CREATE TABLE returns (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL,
	order_item_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	seller_id TEXT NOT NULL,
	product_id TEXT NOT NULL,
	type TEXT NOT NULL,
	reason TEXT NOT NULL,
	description TEXT NOT NULL,
	images TEXT,
	video_url TEXT,
	video_uploaded_at DATETIME,
	video_reviewed_by_seller INTEGER NOT NULL DEFAULT 0,
	video_reviewed_at DATETIME,
	video_seller_comments TEXT,
	status TEXT NOT NULL,
	status_history TEXT NOT NULL DEFAULT '[]',
	approved_by TEXT,
	approved_at DATETIME,
	rejected_by TEXT,
	rejected_at DATETIME,
	rejection_reason TEXT,
	pickup_date DATETIME,
	pickup_slot TEXT,
	pickup_address TEXT,
	tracking_number TEXT,
	shipping_provider TEXT,
	received_at DATETIME,
	received_condition TEXT,
	received_notes TEXT,
	refund_amount TEXT,
	refunded_at DATETIME,
	refund_transaction_id TEXT,
	exchange_product_id TEXT,
	exchange_variant_id TEXT,
	exchange_tracking_number TEXT,
	exchange_shipped_at DATETIME,
	penalty_applied INTEGER NOT NULL DEFAULT 0,
	auto_approved INTEGER NOT NULL DEFAULT 0,
	seller_complaint TEXT,
	seller_complaint_reason TEXT,
	seller_complaint_status TEXT,
	seller_complaint_resolution TEXT,
	created_at DATETIME,
	updated_at DATETIME
)`,
	`CREATE TABLE settlements (
	id TEXT PRIMARY KEY,
	seller_id TEXT NOT NULL,
	order_ids TEXT NOT NULL,
	item_count INTEGER NOT NULL DEFAULT 0,
	amount TEXT NOT NULL,
	status TEXT NOT NULL,
	period_end DATETIME NOT NULL,
	transaction_ref TEXT,
	notes TEXT,
	paid_at DATETIME,
	created_at DATETIME,
	updated_at DATETIME
)`,
	`CREATE TABLE notifications (
	id TEXT PRIMARY KEY,
	recipient_id TEXT NOT NULL,
	recipient_role TEXT NOT NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	data TEXT,
	read_at DATETIME,
	created_at DATETIME
)`,
	`CREATE TABLE ledger_events (
	id TEXT PRIMARY KEY,
	seller_id TEXT NOT NULL,
	settlement_id TEXT,
	return_id TEXT,
	actor_user_id TEXT,
	type TEXT NOT NULL,
	amount TEXT NOT NULL,
	metadata TEXT,
	created_at DATETIME,
	CONSTRAINT ux_ledger_events_settlement_type UNIQUE (settlement_id, type)
)`,
	`CREATE TABLE outbox_events (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at DATETIME,
	published_at DATETIME,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT
)`,
	`CREATE TABLE outbox_dlq (
	id TEXT PRIMARY KEY,
	event_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	error_reason TEXT NOT NULL,
	error_message TEXT,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	failed_at DATETIME,
	created_at DATETIME
)`,
}

// Open returns an isolated in-memory database with every table created.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(uuid.NewString(), "-", ""))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

// SeedUser inserts an active user with the given role.
func SeedUser(t testing.TB, db *gorm.DB, role enums.ActorRole) models.User {
	t.Helper()
	email := fmt.Sprintf("%s@example.com", uuid.NewString()[:8])
	user := models.User{
		ID:       uuid.New(),
		Name:     "Test " + string(role),
		Email:    &email,
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

// SeedSeller inserts an active, verified seller and its owning user.
// A nil commission leaves the platform default in effect.
func SeedSeller(t testing.TB, db *gorm.DB, commission *decimal.Decimal) models.Seller {
	t.Helper()
	owner := SeedUser(t, db, enums.ActorRoleSeller)
	seller := models.Seller{
		ID:             uuid.New(),
		UserID:         owner.ID,
		BusinessName:   "Seller " + owner.ID.String()[:8],
		Email:          owner.Email,
		Status:         enums.SellerStatusActive,
		IsVerified:     true,
		CommissionRate: commission,
	}
	require.NoError(t, db.Create(&seller).Error)
	return seller
}

// SeedProduct inserts an active product owned by sellerID.
func SeedProduct(t testing.TB, db *gorm.DB, sellerID uuid.UUID, price, taxRate string, stock int) models.Product {
	t.Helper()
	product := models.Product{
		ID:            uuid.New(),
		SellerID:      sellerID,
		Name:          "Product " + uuid.NewString()[:6],
		SKU:           "SKU-" + uuid.NewString()[:6],
		Images:        []string{"https://cdn.example.com/p.jpg"},
		Price:         decimal.RequireFromString(price),
		TaxRate:       decimal.RequireFromString(taxRate),
		StockQuantity: stock,
		Status:        enums.ProductStatusActive,
	}
	require.NoError(t, db.Create(&product).Error)
	return product
}

// Clock is a settable time source for services that take a now func.
type Clock struct {
	Current time.Time
}

func (c *Clock) Now() time.Time {
	return c.Current
}

func (c *Clock) Advance(d time.Duration) {
	c.Current = c.Current.Add(d)
}
