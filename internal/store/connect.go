package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// Connect opens a pgx pool with pgvector types registered on every
// connection and verifies the database is reachable. The vector extension
// is created up front: type registration in AfterConnect needs the vector
// type to already exist.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	setup, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: connect to database: %w", err)
	}
	_, err = setup.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	setup.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: create vector extension: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	return pool, nil
}
