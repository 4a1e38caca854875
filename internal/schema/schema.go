// Package schema brings the store's SQLite file up to the current structure.
//
// Run is executed on every boot. A missing database gets the whole schema in
// one transaction; an existing one only receives additive steps (new
// columns, tables and indexes), identifier backfills and timestamp
// normalisation. Each step is guarded on its own: a failing step is logged
// and skipped so that boot is never blocked by a non-critical adjustment,
// and every step is safe to re-run.
package schema

import (
	"fmt"
	"log/slog"

	"storefront/internal/code"

	"gorm.io/gorm"
)

// createStatements 是全新库的完整建表脚本。
var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		slug TEXT UNIQUE,
		description_html TEXT,
		price_cents INTEGER NOT NULL DEFAULT 0,
		discount_cents INTEGER,
		images TEXT,
		category TEXT,
		tags TEXT,
		stock INTEGER DEFAULT 0,
		sku TEXT,
		published INTEGER DEFAULT 1,
		ticket_id TEXT,
		created_at TEXT,
		updated_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		public_id TEXT,
		customer_name TEXT,
		email TEXT,
		phone TEXT,
		address TEXT,
		city TEXT,
		country TEXT,
		notes TEXT,
		items TEXT,
		items_version INTEGER DEFAULT 0,
		total_cents INTEGER,
		status TEXT,
		created_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT,
		email TEXT,
		whatsapp TEXT,
		subject TEXT,
		message TEXT,
		is_read INTEGER DEFAULT 0,
		created_at TEXT
	)`,
	createAdmins,
	createReviews,
	createSettings,
	createSubscribers,
	`CREATE INDEX IF NOT EXISTS idx_products_published_created ON products(published, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_products_slug ON products(slug)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_ticket_id ON products(ticket_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_public_id ON orders(public_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at DESC)`,
	createReviewsIndex,
}

const (
	createAdmins = `CREATE TABLE IF NOT EXISTS admins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE,
		password_hash TEXT
	)`
	createReviews = `CREATE TABLE IF NOT EXISTS reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL,
		name TEXT,
		rating INTEGER CHECK(rating >= 1 AND rating <= 5),
		body TEXT,
		avatar_path TEXT,
		created_at TEXT,
		FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
	)`
	createReviewsIndex = `CREATE INDEX IF NOT EXISTS idx_reviews_product ON reviews(product_id)`
	createSettings     = `CREATE TABLE IF NOT EXISTS ai_settings (
		key TEXT PRIMARY KEY,
		value TEXT
	)`
	createSubscribers = `CREATE TABLE IF NOT EXISTS newsletter_subscribers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT UNIQUE NOT NULL,
		created_at TEXT
	)`
)

// timestampColumns 需要把 ISO-8601 的 T 分隔符统一为空格的列。
var timestampColumns = [][2]string{
	{"orders", "created_at"},
	{"products", "created_at"},
	{"products", "updated_at"},
	{"messages", "created_at"},
	{"reviews", "created_at"},
	{"newsletter_subscribers", "created_at"},
}

// Migrator 执行建表与增量迁移。
type Migrator struct {
	DB     *gorm.DB
	Logger *slog.Logger
	Codes  code.Generator
}

type step struct {
	name string
	run  func(db *gorm.DB) error
}

// Run 建表或迁移。只有全新库建表失败才返回错误。
func (m *Migrator) Run() error {
	if m.Logger == nil {
		m.Logger = slog.New(slog.DiscardHandler)
	}
	if !m.DB.Migrator().HasTable("products") {
		if err := m.create(); err != nil {
			return err
		}
		m.Logger.Info("schema created")
		return nil
	}
	for _, s := range m.steps() {
		if err := s.run(m.DB); err != nil {
			m.Logger.Warn("schema step skipped", "step", s.name, "error", err)
		}
	}
	return nil
}

func (m *Migrator) create() error {
	return m.DB.Transaction(func(tx *gorm.DB) error {
		for _, stmt := range createStatements {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
		}
		return nil
	})
}

func (m *Migrator) steps() []step {
	return []step{
		{"products.discount_cents", addColumn("products", "discount_cents", "INTEGER")},
		// SQLite 不支持 ADD COLUMN ... UNIQUE，唯一性由后面的唯一索引保证。
		{"products.ticket_id", addColumn("products", "ticket_id", "TEXT")},
		{"products.ticket_id backfill", m.backfill("products", "ticket_id")},
		{"products.ticket_id index", exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_ticket_id ON products(ticket_id)`)},
		{"reviews", exec(createReviews)},
		{"reviews index", exec(createReviewsIndex)},
		{"ai_settings", exec(createSettings)},
		{"newsletter_subscribers", exec(createSubscribers)},
		{"admins", exec(createAdmins)},
		{"messages.whatsapp", addColumn("messages", "whatsapp", "TEXT")},
		{"orders.public_id", addColumn("orders", "public_id", "TEXT")},
		{"orders.public_id backfill", m.backfill("orders", "public_id")},
		{"orders.public_id index", exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_public_id ON orders(public_id)`)},
		{"orders.items_version", addColumn("orders", "items_version", "INTEGER DEFAULT 0")},
		{"timestamps", normalizeTimestamps},
	}
}

func exec(stmt string) func(*gorm.DB) error {
	return func(db *gorm.DB) error {
		return db.Exec(stmt).Error
	}
}

// Columns 返回表当前的列名集合。
func Columns(db *gorm.DB, table string) (map[string]struct{}, error) {
	var names []string
	if err := db.Raw("SELECT name FROM pragma_table_info(?)", table).Scan(&names).Error; err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	cols := make(map[string]struct{}, len(names))
	for _, n := range names {
		cols[n] = struct{}{}
	}
	return cols, nil
}

// HasColumn 用独立查询检查列是否存在。
func HasColumn(db *gorm.DB, table, column string) bool {
	cols, err := Columns(db, table)
	if err != nil {
		return false
	}
	_, ok := cols[column]
	return ok
}

func addColumn(table, column, decl string) func(*gorm.DB) error {
	return func(db *gorm.DB) error {
		cols, err := Columns(db, table)
		if err != nil {
			return err
		}
		if _, ok := cols[column]; ok {
			return nil
		}
		return db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)).Error
	}
}

// backfill 给缺少编号的行补一个随机 8 位码，拒绝采样避开已占用的码。
func (m *Migrator) backfill(table, column string) func(*gorm.DB) error {
	return func(db *gorm.DB) error {
		var existing []string
		if err := db.Table(table).
			Where(column+" IS NOT NULL AND "+column+" != ''").
			Pluck(column, &existing).Error; err != nil {
			return err
		}
		var ids []int64
		if err := db.Table(table).
			Where(column+" IS NULL OR "+column+" = ''").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		used := make(map[string]struct{}, len(existing)+len(ids))
		for _, c := range existing {
			used[c] = struct{}{}
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			for _, id := range ids {
				c, err := m.Codes.Unique(used)
				if err != nil {
					return err
				}
				if err := tx.Table(table).Where("id = ?", id).Update(column, c).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		m.Logger.Info("codes backfilled", "table", table, "column", column, "rows", len(ids))
		return nil
	}
}

func normalizeTimestamps(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, tc := range timestampColumns {
			stmt := fmt.Sprintf(
				"UPDATE %[1]s SET %[2]s = substr(replace(%[2]s, 'T', ' '), 1, 19) WHERE %[2]s LIKE '%%T%%'",
				tc[0], tc[1])
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
