package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/waitlist/internal/models"
)

// databaseBackend stores entries in the store_entries table. Rows read inside a
// session are locked FOR UPDATE where the dialect supports it; keys that were absent
// are written with a plain INSERT so a concurrent creator surfaces as a unique
// violation, which is reported as a conflict.
type databaseBackend struct {
	db *gorm.DB
}

// NewDatabase returns a Store persisting entries through GORM. The caller owns db and
// must have migrated models.StoreEntry.
func NewDatabase(db *gorm.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("store: database handle is required")
	}
	return newStore(&databaseBackend{db: db}, opts...), nil
}

func (b *databaseBackend) name() string { return "database" }

func (b *databaseBackend) begin(ctx context.Context) (session, error) {
	tx := b.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &databaseSession{tx: tx}, nil
}

func (b *databaseBackend) close() error { return nil }

func (b *databaseBackend) purge(ctx context.Context, now time.Time) (int64, error) {
	res := b.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now.UTC()).
		Delete(&models.StoreEntry{})
	return res.RowsAffected, res.Error
}

type databaseSession struct {
	tx *gorm.DB
}

func (s *databaseSession) load(_ context.Context, key string) ([]byte, error) {
	var row models.StoreEntry
	err := s.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&row, "entry_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		if isDatabaseConflict(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return []byte(row.Value), nil
}

func (s *databaseSession) commit(_ context.Context, writes []write) error {
	now := time.Now()
	for _, w := range writes {
		if err := s.apply(w, now); err != nil {
			s.tx.Rollback()
			if errors.Is(err, ErrConflict) || isDatabaseConflict(err) {
				return ErrConflict
			}
			return err
		}
	}
	if err := s.tx.Commit().Error; err != nil {
		if isDatabaseConflict(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *databaseSession) apply(w write, now time.Time) error {
	var expiresAt *time.Time
	if !w.expiresAt.IsZero() {
		t := w.expiresAt.UTC()
		expiresAt = &t
	}

	switch {
	case w.delete:
		res := s.tx.Where("entry_key = ?", w.key).Delete(&models.StoreEntry{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
	case w.existed:
		res := s.tx.Model(&models.StoreEntry{}).
			Where("entry_key = ?", w.key).
			Updates(map[string]interface{}{
				"value":      datatypes.JSON(w.value),
				"expires_at": expiresAt,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
	default:
		row := models.StoreEntry{
			Key:       w.key,
			Value:     datatypes.JSON(w.value),
			ExpiresAt: expiresAt,
		}
		if err := s.tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *databaseSession) rollback(context.Context) {
	s.tx.Rollback()
}

// isDatabaseConflict recognises unique violations, serialisation failures and
// deadlocks across the supported drivers.
func isDatabaseConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001", "40P01":
			return true
		}
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062 || myErr.Number == 1213
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "database is locked")
}
