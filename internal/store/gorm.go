package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/fairyhunter13/marketplace-ledger/internal/model"
)

// productRow is the persisted form of a product. Amounts are stored as text
// so wei-scale values keep full precision on every driver.
type productRow struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement:false"`
	Name        string          `gorm:"size:255;not null"`
	Price       decimal.Decimal `gorm:"type:text;not null"`
	Owner       string          `gorm:"size:255;index;not null"`
	IsPurchased bool            `gorm:"not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (productRow) TableName() string { return "products" }

func (r productRow) toModel() model.Product {
	return model.Product{
		ID:          r.ID,
		Name:        r.Name,
		Price:       r.Price,
		Owner:       model.Identity(r.Owner),
		IsPurchased: r.IsPurchased,
	}
}

type accountRow struct {
	Identity  string          `gorm:"primaryKey;size:255"`
	Balance   decimal.Decimal `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (accountRow) TableName() string { return "accounts" }

// Gorm persists ledger state through GORM on SQLite or PostgreSQL.
type Gorm struct {
	db *gorm.DB
}

// OpenGorm opens a database with the named driver ("sqlite" or "postgres")
// and migrates the ledger tables.
func OpenGorm(driver, dsn string) (*Gorm, error) {
	var dial gorm.Dialector
	switch driver {
	case "sqlite":
		dial = sqlite.Open(dsn)
	case "postgres":
		dial = postgres.Open(dsn)
	default:
		return nil, errors.Errorf("unsupported gorm driver %q", driver)
	}
	db, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driver)
	}
	if driver == "sqlite" {
		// SQLite has a single writer; one connection also keeps ":memory:"
		// databases from splitting per connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "sqlite handle")
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return NewGorm(db)
}

// NewGorm wraps an open database and migrates the ledger tables.
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if err := db.AutoMigrate(&productRow{}, &accountRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate ledger tables")
	}
	return &Gorm{db: db}, nil
}

func (s *Gorm) View(ctx context.Context, fn func(Tx) error) error {
	return fn(&gormTx{db: s.db.WithContext(ctx)})
}

func (s *Gorm) Update(ctx context.Context, fn func(Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx, writable: true})
	})
}

func (s *Gorm) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormTx struct {
	db       *gorm.DB
	writable bool
}

func (t *gormTx) Count(ctx context.Context) (uint64, error) {
	var n int64
	if err := t.db.WithContext(ctx).Model(&productRow{}).Count(&n).Error; err != nil {
		return 0, errors.Wrap(err, "count products")
	}
	return uint64(n), nil
}

func (t *gormTx) SoldCount(ctx context.Context) (uint64, error) {
	var n int64
	if err := t.db.WithContext(ctx).Model(&productRow{}).Where("is_purchased = ?", true).Count(&n).Error; err != nil {
		return 0, errors.Wrap(err, "count sold products")
	}
	return uint64(n), nil
}

func (t *gormTx) Product(ctx context.Context, id uint64) (model.Product, error) {
	var row productRow
	if err := t.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Product{}, ErrNotFound
		}
		return model.Product{}, errors.Wrapf(err, "find product %d", id)
	}
	return row.toModel(), nil
}

func (t *gormTx) Products(ctx context.Context, offset, limit int) ([]model.Product, error) {
	q := t.db.WithContext(ctx).Order("id")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []productRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	out := make([]model.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (t *gormTx) InsertProduct(ctx context.Context, p model.Product) error {
	if !t.writable {
		return ErrReadOnly
	}
	n, err := t.Count(ctx)
	if err != nil {
		return err
	}
	if p.ID != n+1 {
		return ErrNotContiguous
	}
	row := productRow{
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price,
		Owner:       string(p.Owner),
		IsPurchased: p.IsPurchased,
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrapf(err, "insert product %d", p.ID)
	}
	return nil
}

func (t *gormTx) UpdateProduct(ctx context.Context, p model.Product) error {
	if !t.writable {
		return ErrReadOnly
	}
	res := t.db.WithContext(ctx).Model(&productRow{}).Where("id = ?", p.ID).Updates(map[string]any{
		"name":         p.Name,
		"price":        p.Price,
		"owner":        string(p.Owner),
		"is_purchased": p.IsPurchased,
	})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update product %d", p.ID)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) Balance(ctx context.Context, who model.Identity) (model.Amount, error) {
	var row accountRow
	if err := t.db.WithContext(ctx).First(&row, "identity = ?", string(who)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, errors.Wrapf(err, "find account %s", who)
	}
	return row.Balance, nil
}

func (t *gormTx) Credit(ctx context.Context, who model.Identity, amount model.Amount) error {
	if !t.writable {
		return ErrReadOnly
	}
	b, err := t.Balance(ctx, who)
	if err != nil {
		return err
	}
	row := accountRow{Identity: string(who), Balance: b.Add(amount)}
	err = t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance", "updated_at"}),
	}).Create(&row).Error
	return errors.Wrapf(err, "credit account %s", who)
}
