// Package repository is the persistence layer for hackathons, teams, team
// members, users and operation logs. Every method runs against the handle
// the Store was built with, so a Store handed to a Transaction callback
// joins that transaction.
package repository

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

type Store struct {
	db       *gorm.DB
	validate *validator.Validate
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, validate: validator.New()}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB { return s.db }

// Transaction runs fn inside one database transaction. The Store passed to
// fn is bound to the transaction; returning an error or panicking rolls
// every mutation made through it back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, validate: s.validate})
	})
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}
