// Package sqlstore implements storage.Driver over any SQL database ent can
// talk to. Statements are built with ent's dialect-aware SQL builders so the
// same code serves SQLite and PostgreSQL.
package sqlstore

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/chronicle/pkg/storage"
)

const (
	entitiesTable = "entities"
	countersTable = "counters"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS entities (
		kind TEXT NOT NULL,
		id   TEXT NOT NULL,
		body TEXT NOT NULL,
		PRIMARY KEY (kind, id)
	)`,
	`CREATE TABLE IF NOT EXISTS counters (
		name TEXT NOT NULL PRIMARY KEY,
		seq  BIGINT NOT NULL
	)`,
}

// Store provides storage operations over an ent SQL driver. It is
// database-agnostic and is embedded by the sqlite and postgres drivers.
type Store struct {
	Driver *entsql.Driver
}

// New wraps an ent SQL driver.
func New(drv *entsql.Driver) *Store {
	return &Store{Driver: drv}
}

func (s *Store) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.Driver.Dialect())
}

// Migrate creates the entity and counter tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if err := s.Driver.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Load reads every record and counter.
func (s *Store) Load(ctx context.Context) (*storage.Snapshot, error) {
	snap := &storage.Snapshot{Counters: make(map[string]int)}

	query, args := s.builder().
		Select("kind", "id", "body").
		From(entsql.Table(entitiesTable)).
		OrderBy("kind", "id").
		Query()

	rows := &entsql.Rows{}
	if err := s.Driver.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	for rows.Next() {
		var (
			r    storage.Record
			body string
		)
		if err := rows.Scan(&r.Kind, &r.ID, &body); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		r.Body = []byte(body)
		snap.Records = append(snap.Records, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read entities: %w", err)
	}
	rows.Close()

	query, args = s.builder().
		Select("name", "seq").
		From(entsql.Table(countersTable)).
		Query()

	crows := &entsql.Rows{}
	if err := s.Driver.Query(ctx, query, args, crows); err != nil {
		return nil, fmt.Errorf("failed to query counters: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var (
			name string
			seq  int64
		)
		if err := crows.Scan(&name, &seq); err != nil {
			return nil, fmt.Errorf("failed to scan counter: %w", err)
		}
		snap.Counters[name] = int(seq)
	}

	return snap, crows.Err()
}

// Commit applies the batch inside a single SQL transaction.
func (s *Store) Commit(ctx context.Context, batch *storage.Batch) (err error) {
	if batch.Empty() {
		return nil
	}

	tx, err := s.Driver.Tx(ctx)
	if err != nil {
		return storage.CommitError{Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	b := s.builder()

	for _, k := range batch.Deletes {
		query, args := b.Delete(entitiesTable).
			Where(entsql.And(entsql.EQ("kind", k.Kind), entsql.EQ("id", k.ID))).
			Query()
		if err = tx.Exec(ctx, query, args, nil); err != nil {
			return storage.CommitError{Err: fmt.Errorf("delete %s: %w", k.ID, err)}
		}
	}

	for _, r := range batch.Puts {
		query, args := b.Insert(entitiesTable).
			Columns("kind", "id", "body").
			Values(r.Kind, r.ID, string(r.Body)).
			OnConflict(
				entsql.ConflictColumns("kind", "id"),
				entsql.ResolveWithNewValues(),
			).
			Query()
		if err = tx.Exec(ctx, query, args, nil); err != nil {
			return storage.CommitError{Err: fmt.Errorf("put %s: %w", r.ID, err)}
		}
	}

	for name, seq := range batch.Counters {
		query, args := b.Insert(countersTable).
			Columns("name", "seq").
			Values(name, int64(seq)).
			OnConflict(
				entsql.ConflictColumns("name"),
				entsql.ResolveWithNewValues(),
			).
			Query()
		if err = tx.Exec(ctx, query, args, nil); err != nil {
			return storage.CommitError{Err: fmt.Errorf("counter %s: %w", name, err)}
		}
	}

	if err = tx.Commit(); err != nil {
		return storage.CommitError{Err: err}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.Driver.Close()
}
