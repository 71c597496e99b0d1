package session

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// sessionRecord is the persisted form of a Session.
type sessionRecord struct {
	ID              string `gorm:"primaryKey;type:varchar(64)"`
	UserID          string `gorm:"index;type:varchar(64)"`
	Email           string `gorm:"type:varchar(100)"`
	AccessToken     string `gorm:"type:text"`
	RefreshToken    string `gorm:"type:text"`
	AccessExpiresAt time.Time
	ExpiresAt       time.Time `gorm:"index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (sessionRecord) TableName() string {
	return "portal_sessions"
}

// GormStore persists sessions in a local sqlite file so signed-in users
// survive a portal restart.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens (or creates) the sqlite database at path and migrates
// the session table.
func NewGormStore(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&sessionRecord{}); err != nil {
		return nil, err
	}

	return &GormStore{db: db}, nil
}

func toRecord(s Session) sessionRecord {
	return sessionRecord{
		ID:              s.ID,
		UserID:          s.UserID,
		Email:           s.Email,
		AccessToken:     s.AccessToken,
		RefreshToken:    s.RefreshToken,
		AccessExpiresAt: s.AccessExpiresAt,
		ExpiresAt:       s.ExpiresAt,
		CreatedAt:       s.CreatedAt,
	}
}

func fromRecord(r sessionRecord) *Session {
	return &Session{
		ID:              r.ID,
		UserID:          r.UserID,
		Email:           r.Email,
		AccessToken:     r.AccessToken,
		RefreshToken:    r.RefreshToken,
		AccessExpiresAt: r.AccessExpiresAt,
		ExpiresAt:       r.ExpiresAt,
		CreatedAt:       r.CreatedAt,
	}
}

func (g *GormStore) Create(ctx context.Context, s Session) error {
	record := toRecord(s)
	return g.db.WithContext(ctx).Create(&record).Error
}

func (g *GormStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	var record sessionRecord
	err := g.db.WithContext(ctx).First(&record, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(record), nil
}

func (g *GormStore) Update(ctx context.Context, s Session) error {
	record := toRecord(s)
	return g.db.WithContext(ctx).Save(&record).Error
}

func (g *GormStore) Delete(ctx context.Context, sessionID string) error {
	return g.db.WithContext(ctx).Delete(&sessionRecord{}, "id = ?", sessionID).Error
}

// PruneExpired removes sessions past their absolute expiry. Called
// opportunistically at startup.
func (g *GormStore) PruneExpired(ctx context.Context, now time.Time) error {
	return g.db.WithContext(ctx).Delete(&sessionRecord{}, "expires_at < ?", now).Error
}
