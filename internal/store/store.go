package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/framecheck/internal/sampler"
	"github.com/andresmejia3/framecheck/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store manages the PostgreSQL connection pool for inspections and their frames.
type Store struct {
	pool *pgxpool.Pool
}

// New establishes a connection pool and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// initSchema creates the tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS inspections (
			id UUID PRIMARY KEY,
			video_id TEXT NOT NULL,
			params TEXT NOT NULL,
			technician TEXT NOT NULL,
			serial TEXT NOT NULL,
			contract TEXT NOT NULL DEFAULT '',
			video_name TEXT NOT NULL,
			size_bytes BIGINT NOT NULL,
			duration DOUBLE PRECISION NOT NULL,
			frame_count INT NOT NULL,
			source_inspection_id UUID REFERENCES inspections(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		ALTER TABLE inspections ADD COLUMN IF NOT EXISTS source_inspection_id UUID REFERENCES inspections(id) ON DELETE CASCADE;
		CREATE TABLE IF NOT EXISTS inspection_frames (
			inspection_id UUID REFERENCES inspections(id) ON DELETE CASCADE,
			frame_index INT NOT NULL,
			timestamp_sec DOUBLE PRECISION NOT NULL,
			width INT NOT NULL,
			height INT NOT NULL,
			format TEXT NOT NULL,
			data BYTEA NOT NULL,
			PRIMARY KEY (inspection_id, frame_index)
		);
		CREATE INDEX IF NOT EXISTS inspections_cache_idx ON inspections (video_id, params, created_at DESC);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close terminates the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveInspection persists the inspection and its frames in one transaction.
// A record with a SourceID only references the owner's frames.
func (s *Store) SaveInspection(ctx context.Context, in types.Inspection) error {
	if in.ID == uuid.Nil {
		return errors.New("inspection has no id")
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var source pgtype.UUID
	if in.SourceID != uuid.Nil {
		source = pgtype.UUID{Bytes: in.SourceID, Valid: true}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO inspections (id, video_id, params, technician, serial, contract, video_name, size_bytes, duration, frame_count, source_inspection_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, in.ID, in.VideoID, in.Params.Key(), in.Technician, in.Serial, in.Contract, in.VideoName,
		in.SizeBytes, in.Result.Duration, len(in.Result.Frames), source, createdAt)
	if err != nil {
		return fmt.Errorf("insert inspection: %w", err)
	}
	if source.Valid {
		return tx.Commit(ctx)
	}

	id := pgtype.UUID{Bytes: in.ID, Valid: true}
	rows := make([][]any, 0, len(in.Result.Frames))
	for _, f := range in.Result.Frames {
		rows = append(rows, []any{id, f.Index, f.Timestamp, f.Width, f.Height, string(f.Format), f.Data})
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"inspection_frames"},
		[]string{"inspection_id", "frame_index", "timestamp_sec", "width", "height", "format", "data"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insert frames: %w", err)
	}

	return tx.Commit(ctx)
}

// FindCachedResult returns the most recent inspection of the same content with the same parameters.
// found is false when there is none. SourceID is set to the inspection whose frames were loaded.
func (s *Store) FindCachedResult(ctx context.Context, videoID string, params types.Params) (in types.Inspection, found bool, err error) {
	var format string
	err = s.pool.QueryRow(ctx, `
		SELECT id, COALESCE(source_inspection_id, id), technician, serial, contract, video_name, size_bytes, duration, frame_count, created_at
		FROM inspections WHERE video_id = $1 AND params = $2
		ORDER BY created_at DESC LIMIT 1
	`, videoID, params.Key()).Scan(
		&in.ID, &in.SourceID, &in.Technician, &in.Serial, &in.Contract, &in.VideoName,
		&in.SizeBytes, &in.Result.Duration, &in.FrameCount, &in.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Inspection{}, false, nil // No cached result
	}
	if err != nil {
		return types.Inspection{}, false, err
	}
	in.VideoID = videoID
	in.Params = params

	rows, err := s.pool.Query(ctx, `
		SELECT frame_index, timestamp_sec, width, height, format, data
		FROM inspection_frames WHERE inspection_id = $1 ORDER BY frame_index ASC
	`, in.SourceID)
	if err != nil {
		return types.Inspection{}, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var f sampler.Frame
		if err := rows.Scan(&f.Index, &f.Timestamp, &f.Width, &f.Height, &format, &f.Data); err != nil {
			return types.Inspection{}, false, err
		}
		f.Format = sampler.Format(format)
		f.ColorOrder = sampler.ColorRGB
		in.Result.Frames = append(in.Result.Frames, f)
	}
	if err := rows.Err(); err != nil {
		return types.Inspection{}, false, err
	}

	// A row with a frame count but no frame rows is not a usable cache entry.
	if len(in.Result.Frames) != in.FrameCount || in.FrameCount == 0 {
		return types.Inspection{}, false, nil
	}
	return in, true, nil
}

// ListInspections returns every stored inspection, newest first, without frame payloads.
func (s *Store) ListInspections(ctx context.Context) ([]types.Inspection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, video_id, technician, serial, contract, video_name, size_bytes, duration, frame_count, created_at
		FROM inspections ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Inspection
	for rows.Next() {
		var in types.Inspection
		if err := rows.Scan(&in.ID, &in.VideoID, &in.Technician, &in.Serial, &in.Contract, &in.VideoName,
			&in.SizeBytes, &in.Result.Duration, &in.FrameCount, &in.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS inspection_frames CASCADE;
		DROP TABLE IF EXISTS inspections CASCADE;
	`)
	return err
}
