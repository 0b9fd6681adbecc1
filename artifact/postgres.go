package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresSource reads the artifact from the model_artifacts table
type PostgresSource struct {
	db   *sql.DB
	name string
}

// NewPostgresSource creates a PostgresSource returning the artifact stored under name
func NewPostgresSource(db *sql.DB, name string) *PostgresSource {
	return &PostgresSource{
		db:   db,
		name: name,
	}
}

// OpenPostgres connects to databaseURL and verifies the connection
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Load fetches the artifact row
func (s *PostgresSource) Load(ctx context.Context) (*Blob, error) {
	var formatName string
	var body []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT format, body
		FROM model_artifacts
		WHERE name = $1
	`, s.name).Scan(&formatName, &body)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model artifact: %w", err)
	}

	format, err := ParseFormat(formatName)
	if err != nil {
		return nil, err
	}

	return &Blob{
		Name:   s.name,
		Format: format,
		Data:   body,
	}, nil
}

// Describe returns the table row the source reads
func (s *PostgresSource) Describe() string {
	return "postgres://model_artifacts/" + s.name
}

// Store upserts blob into the model_artifacts table under blob.Name
func Store(ctx context.Context, db *sql.DB, blob *Blob) error {
	if blob.Name == "" {
		return errors.New("artifact name is required")
	}
	if _, err := ParseFormat(string(blob.Format)); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO model_artifacts (name, format, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET format = EXCLUDED.format, body = EXCLUDED.body, created_at = NOW()
	`, blob.Name, string(blob.Format), blob.Data)
	if err != nil {
		return fmt.Errorf("failed to store model artifact: %w", err)
	}

	return nil
}
