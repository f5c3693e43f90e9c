// Package store persists users, groups and messages with gorm.
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a unique field is already taken.
	ErrDuplicate = errors.New("record already exists")
)

type userRow struct {
	Id           string `gorm:"primarykey;size:36"`
	Username     string `gorm:"size:64;not null;uniqueIndex"`
	Email        string `gorm:"size:255;not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	ProfileImage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

type groupRow struct {
	Id        string      `gorm:"primarykey;size:36"`
	Name      string      `gorm:"size:100;not null"`
	Image     string
	Members   []memberRow `gorm:"foreignKey:GroupId;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (groupRow) TableName() string { return "chat_groups" }

type memberRow struct {
	GroupId      string `gorm:"primarykey;size:36"`
	UserId       string `gorm:"primarykey;size:36;index"`
	Username     string `gorm:"size:64;not null"`
	ProfileImage string
	Role         string `gorm:"size:16;not null"`
}

func (memberRow) TableName() string { return "group_members" }

type messageRow struct {
	Id           string    `gorm:"primarykey;size:36"`
	GroupId      string    `gorm:"size:36;not null;index:idx_messages_group_created,priority:1"`
	UserId       string    `gorm:"size:36;not null"`
	Username     string    `gorm:"size:64;not null"`
	ProfileImage string
	Type         string    `gorm:"size:16;not null"`
	Content      string    `gorm:"not null"`
	ImageURL     string
	Embedding    []float64 `gorm:"serializer:json"`
	CreatedAt    time.Time `gorm:"index:idx_messages_group_created,priority:2"`
	UpdatedAt    time.Time
}

func (messageRow) TableName() string { return "messages" }

// Open connects to the SQLite database at path and migrates the schema.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	// SQLite serializes writers; one connection also keeps :memory: databases
	// shared across the pool.
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&userRow{}, &groupRow{}, &memberRow{}, &messageRow{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
