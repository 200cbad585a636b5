package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/carryo/job-intake/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

var schema = []string{
	`CREATE TABLE IF NOT EXISTS recycling_centers (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		address VARCHAR(512) NOT NULL,
		lat DOUBLE NOT NULL,
		lng DOUBLE NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS job_submissions (
		id VARCHAR(36) PRIMARY KEY,
		session_id VARCHAR(36) NOT NULL,
		customer_id VARCHAR(64) NOT NULL,
		job_id VARCHAR(64) NOT NULL UNIQUE,
		job_type VARCHAR(16) NOT NULL,
		customer_price DECIMAL(10,2) NOT NULL,
		platform_fee DECIMAL(10,2) NOT NULL,
		driver_payout DECIMAL(10,2) NOT NULL,
		submitted_at DATETIME NOT NULL,
		INDEX idx_job_submissions_customer (customer_id)
	)`,
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates the tables if they do not exist yet.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) ListRecyclingCenters(ctx context.Context) ([]domain.RecyclingCenter, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, address, lat, lng
		FROM recycling_centers WHERE active = TRUE ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query recycling centers: %w", err)
	}
	defer rows.Close()

	var centers []domain.RecyclingCenter
	for rows.Next() {
		var c domain.RecyclingCenter
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.Lat, &c.Lng); err != nil {
			return nil, fmt.Errorf("scan recycling center: %w", err)
		}
		centers = append(centers, c)
	}
	return centers, rows.Err()
}

func (m *MySQLAdapter) GetRecyclingCenter(ctx context.Context, id string) (*domain.RecyclingCenter, error) {
	var c domain.RecyclingCenter
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, address, lat, lng
		FROM recycling_centers WHERE id = ? AND active = TRUE`, id,
	).Scan(&c.ID, &c.Name, &c.Address, &c.Lat, &c.Lng)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query recycling center: %w", err)
	}
	return &c, nil
}

// SeedRecyclingCenters upserts the given centres, leaving other rows as they are.
func (m *MySQLAdapter) SeedRecyclingCenters(ctx context.Context, centers []domain.RecyclingCenter) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, c := range centers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO recycling_centers (id, name, address, lat, lng)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE name = VALUES(name), address = VALUES(address),
				lat = VALUES(lat), lng = VALUES(lng)`,
			c.ID, c.Name, c.Address, c.Lat, c.Lng,
		)
		if err != nil {
			return fmt.Errorf("upsert recycling center %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// RecordSubmission writes the ledger row of a created job. A job that is
// already recorded is not an error.
func (m *MySQLAdapter) RecordSubmission(ctx context.Context, s domain.Submission) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO job_submissions (id, session_id, customer_id, job_id, job_type,
			customer_price, platform_fee, driver_payout, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.SessionID, s.CustomerID, s.JobID, s.JobType.String(),
		s.Pricing.CustomerPrice, s.Pricing.PlatformFee, s.Pricing.DriverPayout,
		s.SubmittedAt.UTC(),
	)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}
