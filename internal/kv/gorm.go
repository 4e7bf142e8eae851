package kv

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVEntry is one row of the key-value table. ID is the insertion order.
type KVEntry struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Key       string `gorm:"column:kv_key;size:255;uniqueIndex;not null"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}

func (KVEntry) TableName() string { return "kv_entries" }

type KVCounter struct {
	Name  string `gorm:"primaryKey;size:255"`
	Value int64  `gorm:"not null"`
}

func (KVCounter) TableName() string { return "kv_counters" }

// GormStore keeps the key space in a SQL table through gorm.
type GormStore struct {
	DB *gorm.DB
}

// NewGormStore migrates the tables it needs and returns the store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&KVEntry{}, &KVCounter{}); err != nil {
		return nil, unavailable(err, "migrate")
	}
	return &GormStore{DB: db}, nil
}

func (s *GormStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var e KVEntry
	err := s.DB.WithContext(ctx).Where("kv_key = ?", key).Limit(1).Find(&e).Error
	if err != nil {
		return nil, false, unavailable(err, "get")
	}
	if e.ID == 0 {
		return nil, false, nil
	}
	return e.Value, true, nil
}

func (s *GormStore) Set(ctx context.Context, key string, value []byte) error {
	e := KVEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kv_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
	return unavailable(err, "set")
}

func (s *GormStore) SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	e := KVEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&e)
	if res.Error != nil {
		return false, unavailable(res.Error, "setnx")
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	err := s.DB.WithContext(ctx).Where("kv_key = ?", key).Delete(&KVEntry{}).Error
	return unavailable(err, "delete")
}

func (s *GormStore) GetByPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	var rows []KVEntry
	err := s.DB.WithContext(ctx).
		Where("kv_key LIKE ?", escapeLike(prefix)+"%").
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, unavailable(err, "scan")
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		// LIKE is case-insensitive under some collations
		if strings.HasPrefix(r.Key, prefix) {
			out = append(out, Entry{Key: r.Key, Value: r.Value})
		}
	}
	return out, nil
}

func (s *GormStore) Next(ctx context.Context, counter string) (int64, error) {
	var c KVCounter
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"value": gorm.Expr("kv_counters.value + 1"),
			}),
		}).Create(&KVCounter{Name: counter, Value: 1}).Error
		if err != nil {
			return err
		}
		return tx.Where("name = ?", counter).First(&c).Error
	})
	if err != nil {
		return 0, unavailable(err, "incr")
	}
	return c.Value, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
