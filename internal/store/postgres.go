package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store over a self-hosted mirror of the record base.
// Records live in frame_records with their dynamic field set as jsonb; the
// frame_record_fields catalog is the known-field set, so unknown-field
// handling behaves like the hosted store's.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, classifyPgError(err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Query(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where string
		arg   string
	)
	switch {
	case f.PathEquals != "":
		where, arg = "frame_path = $1", f.PathEquals
	case f.PathContains != "":
		where, arg = "frame_path LIKE '%' || $1 || '%'", f.PathContains
	default:
		return nil, fmt.Errorf("empty filter")
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, frame_path, fields FROM frame_records WHERE `+where, arg)
	if err != nil {
		return nil, classifyPgError(err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			id     string
			path   string
			raw    []byte
			fields map[string]any
		)
		if err := rows.Scan(&id, &path, &raw); err != nil {
			return nil, classifyPgError(err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &fields); err != nil {
				return nil, fmt.Errorf("parse fields for %s: %w", id, err)
			}
		}
		if fields == nil {
			fields = map[string]any{}
		}
		fields["FramePath"] = path
		out = append(out, Record{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError(err)
	}
	return out, nil
}

func (p *Postgres) Update(ctx context.Context, id string, fields map[string]any) error {
	if err := p.checkFields(ctx, fields); err != nil {
		return err
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE frame_records SET fields = fields || $1::jsonb, updated_at = now()
		WHERE id = $2`, raw, id)
	if err != nil {
		return classifyPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return &Error{Kind: KindNotFound, Msg: id}
	}
	return nil
}

func (p *Postgres) UpdateBatch(ctx context.Context, updates []RecordUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	if len(updates) > BatchLimit {
		return fmt.Errorf("batch of %d exceeds store limit %d", len(updates), BatchLimit)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return classifyPgError(err)
	}
	defer tx.Rollback(ctx)

	for _, u := range updates {
		if err := p.checkFields(ctx, u.Fields); err != nil {
			return err
		}
		raw, err := json.Marshal(u.Fields)
		if err != nil {
			return fmt.Errorf("marshal fields: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE frame_records SET fields = fields || $1::jsonb, updated_at = now()
			WHERE id = $2`, raw, u.ID); err != nil {
			return classifyPgError(err)
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Fields(ctx context.Context, id string) ([]string, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, `
		SELECT fields FROM frame_records WHERE id = $1`, id).Scan(&raw)
	if err != nil {
		return nil, classifyPgError(err)
	}
	var fields map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("parse fields for %s: %w", id, err)
		}
	}
	return Record{ID: id, Fields: fields}.FieldNames(), nil
}

// checkFields rejects field names missing from the catalog, mirroring how
// the hosted API reports unknown fields.
func (p *Postgres) checkFields(ctx context.Context, fields map[string]any) error {
	for name := range fields {
		var exists bool
		err := p.pool.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM frame_record_fields WHERE name = $1)`, name).Scan(&exists)
		if err != nil {
			return classifyPgError(err)
		}
		if !exists {
			return &Error{Kind: KindUnknownField, Field: name, Msg: "not in field catalog"}
		}
	}
	return nil
}

func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 28xxx is invalid authorization (bad password, no role).
		if strings.HasPrefix(pgErr.Code, "28") {
			return &Error{Kind: KindAuth, Msg: pgErr.Message}
		}
	}
	return &Error{Kind: KindTransient, Msg: err.Error()}
}
