// Package store persists access requests in Postgres. It implements the
// intake.RequestStore collaborator; the schema (see schema.sql) enforces
// the enum constraints the normalizer does not re-check.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careconnect/mail-intake/internal/intake"
)

// Postgres is a pgx-backed request store.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect opens a connection pool against the given DSN and verifies it.
func Connect(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close releases the pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

// FindExisting reports whether an email-submitted request already exists
// for the given contact email and organization.
func (s *Postgres) FindExisting(ctx context.Context, email, organization string) (bool, error) {
	query := `
        SELECT id FROM access_requests
        WHERE email = $1 AND organization = $2 AND status = $3
        LIMIT 1
    `
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, query, email, organization, intake.StatusEmailSubmitted).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query existing request: %w", err)
	}
	return true, nil
}

// Create inserts a new access request. Sub-records are stored as JSONB.
func (s *Postgres) Create(ctx context.Context, req *intake.AccessRequest) error {
	usage, err := json.Marshal(req.EstimatedUsage)
	if err != nil {
		return fmt.Errorf("encode estimated usage: %w", err)
	}
	technical, err := json.Marshal(req.TechnicalDetails)
	if err != nil {
		return fmt.Errorf("encode technical details: %w", err)
	}
	officials, err := json.Marshal(req.AuthorizedOfficials)
	if err != nil {
		return fmt.Errorf("encode authorized officials: %w", err)
	}

	query := `
        INSERT INTO access_requests (
            id, organization, contact_person, email, phone, purpose,
            data_types, justification, estimated_usage, technical_details,
            government_level, department, authorized_officials,
            status, priority, requested_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
    `
	_, err = s.pool.Exec(ctx, query,
		uuid.New(),
		req.Organization,
		req.ContactPerson,
		req.Email,
		req.Phone,
		req.Purpose,
		req.DataTypes,
		req.Justification,
		usage,
		technical,
		req.GovernmentLevel,
		req.Department,
		officials,
		req.Status,
		req.Priority,
		req.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("insert access request: %w", err)
	}
	return nil
}
