package assetstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Amund211/assetcache/internal/codec"
	"github.com/Amund211/assetcache/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Postgres loads assets from the assets table in the given schema
type Postgres struct {
	db     *sqlx.DB
	schema string

	handles *handleTracker
	tracer  trace.Tracer
}

func NewPostgres(db *sqlx.DB, schema string, logger *slog.Logger) *Postgres {
	return &Postgres{
		db:     db,
		schema: schema,

		handles: newHandleTracker(logger.With("store", "postgres")),
		tracer:  otel.Tracer("assetcache/assetstore/postgres"),
	}
}

type dbAsset struct {
	Key       string    `db:"key"`
	Content   []byte    `db:"content"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (p *Postgres) beginWithSearchPath(ctx context.Context, readOnly bool) (*sqlx.Tx, error) {
	txx, err := p.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	_, err = txx.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", pq.QuoteIdentifier(p.schema)))
	if err != nil {
		txx.Rollback()
		return nil, fmt.Errorf("failed to set search path: %w", err)
	}

	return txx, nil
}

// Put inserts or replaces the raw content stored under key
func (p *Postgres) Put(ctx context.Context, key string, raw []byte, updatedAt time.Time) error {
	ctx, span := p.tracer.Start(ctx, "Postgres.Put")
	defer span.End()

	txx, err := p.beginWithSearchPath(ctx, false)
	if err != nil {
		return err
	}
	defer txx.Rollback()

	_, err = txx.ExecContext(
		ctx,
		`INSERT INTO assets
		(key, content, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key)
		DO UPDATE SET
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at`,
		key,
		raw,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert asset: %w", err)
	}

	err = txx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (p *Postgres) Load(ctx context.Context, key string, hint domain.TypeHint) (Handle, *domain.Asset, error) {
	ctx, span := p.tracer.Start(ctx, "Postgres.Load", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	if key == "" {
		return nil, nil, fmt.Errorf("%w: key %q", domain.ErrInvalidKey, key)
	}

	txx, err := p.beginWithSearchPath(ctx, true)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	defer txx.Rollback()

	var entry dbAsset
	err = txx.GetContext(ctx, &entry, "SELECT key, content, updated_at FROM assets WHERE key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: key %q", domain.ErrAssetNotFound, key)
	} else if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("failed to select asset: %w", err)
	}

	asset, err := codec.Decode(key, entry.Content, hint)
	if err != nil {
		return nil, nil, err
	}

	return p.handles.issue(key), asset, nil
}

func (p *Postgres) Release(handle Handle) {
	p.handles.release(handle)
}

func (p *Postgres) Outstanding() int {
	return p.handles.count()
}
