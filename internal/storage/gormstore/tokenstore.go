// Package gormstore implements dispatch.TokenStore on a SQL database through gorm.
// Postgres backs production deployments; sqlite serves local runs and tests.
package gormstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/tinywideclouds/go-push-registration/pkg/dispatch"
)

const (
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite"
)

// UserDevice is one FCM registration token owned by a user.
type UserDevice struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"size:255;not null;uniqueIndex:idx_user_devices_user_token"`
	FCMToken  string `gorm:"column:fcm_token;size:4096;not null;uniqueIndex:idx_user_devices_user_token"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserDevice) TableName() string { return "user_devices" }

// WebPushSubscriptionRow is a browser subscription; the endpoint identifies it.
type WebPushSubscriptionRow struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"size:255;not null;index"`
	Endpoint  string `gorm:"size:2048;not null;uniqueIndex"`
	P256dh    string `gorm:"column:p256dh;not null"`
	Auth      string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (WebPushSubscriptionRow) TableName() string { return "web_push_subscriptions" }

// Open connects with the named driver and migrates the schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSqlite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&UserDevice{}, &WebPushSubscriptionRow{}); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

// Store implements dispatch.TokenStore.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// RegisterFCM upserts on (user_id, fcm_token): INSERT ... ON CONFLICT DO UPDATE.
func (s *Store) RegisterFCM(ctx context.Context, userID, token string) error {
	now := time.Now().UTC()
	row := &UserDevice{UserID: userID, FCMToken: token, CreatedAt: now, UpdatedAt: now}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "fcm_token"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to store fcm token: %w", err)
	}
	return nil
}

func (s *Store) UnregisterFCM(ctx context.Context, userID, token string) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND fcm_token = ?", userID, token).
		Delete(&UserDevice{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete fcm token: %w", err)
	}
	return nil
}

// RegisterWeb upserts on endpoint. A browser that re-subscribes under another
// user moves the subscription to that user.
func (s *Store) RegisterWeb(ctx context.Context, userID string, sub dispatch.WebPushSubscription) error {
	_, err := s.ClaimWeb(ctx, userID, sub)
	return err
}

// ClaimWeb is RegisterWeb that also reports the user the endpoint was moved from.
func (s *Store) ClaimWeb(ctx context.Context, userID string, sub dispatch.WebPushSubscription) (string, error) {
	now := time.Now().UTC()
	row := &WebPushSubscriptionRow{
		UserID:    userID,
		Endpoint:  sub.Endpoint,
		P256dh:    sub.Keys.P256dh,
		Auth:      sub.Keys.Auth,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var previous string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing WebPushSubscriptionRow
		if err := tx.Select("user_id").Where("endpoint = ?", sub.Endpoint).Limit(1).Find(&existing).Error; err != nil {
			return err
		}
		if existing.UserID != userID {
			previous = existing.UserID
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth", "updated_at"}),
		}).Create(row).Error
	})
	if err != nil {
		return "", fmt.Errorf("failed to store web subscription: %w", err)
	}
	return previous, nil
}

func (s *Store) UnregisterWeb(ctx context.Context, userID, endpoint string) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Delete(&WebPushSubscriptionRow{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete web subscription: %w", err)
	}
	return nil
}

func (s *Store) Fetch(ctx context.Context, userID string) (*dispatch.DeviceSet, error) {
	var devices []UserDevice
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to query fcm tokens: %w", err)
	}

	var subs []WebPushSubscriptionRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to query web subscriptions: %w", err)
	}

	set := &dispatch.DeviceSet{
		UserID:           userID,
		FCMTokens:        make([]string, 0, len(devices)),
		WebSubscriptions: make([]dispatch.WebPushSubscription, 0, len(subs)),
	}
	for _, d := range devices {
		set.FCMTokens = append(set.FCMTokens, d.FCMToken)
	}
	for _, r := range subs {
		var sub dispatch.WebPushSubscription
		sub.Endpoint = r.Endpoint
		sub.Keys.P256dh = r.P256dh
		sub.Keys.Auth = r.Auth
		set.WebSubscriptions = append(set.WebSubscriptions, sub)
	}
	return set, nil
}
