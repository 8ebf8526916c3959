package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"

	"github.com/solatis/ruleset/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CatalogRecord is a stored catalog plus its bookkeeping columns.
// Revision starts at 1 and increments on every save under the same name.
type CatalogRecord struct {
	ID        types.CatalogID
	Catalog   types.Catalog
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type catalogRow struct {
	ID        string    `db:"catalog_id"`
	Name      string    `db:"name"`
	Document  string    `db:"document"`
	Revision  int64     `db:"revision"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r catalogRow) record() (CatalogRecord, error) {
	var cat types.Catalog
	if err := json.UnmarshalFromString(r.Document, &cat); err != nil {
		return CatalogRecord{}, fmt.Errorf("catalog %q: corrupt document: %w", r.Name, err)
	}
	cat.Name = r.Name
	return CatalogRecord{
		ID:        types.CatalogID(r.ID),
		Catalog:   cat,
		Revision:  r.Revision,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}, nil
}

// Store is the catalog repository. It also serves as a rules.Source so an
// engine can reload straight from the database.
type Store struct {
	queries *Queries
}

// NewStore loads the named queries for db.
func NewStore(db *sqlx.DB) (*Store, error) {
	q, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &Store{queries: q}, nil
}

// Queries exposes the named-query runner for other repositories (API keys).
func (s *Store) Queries() *Queries {
	return s.queries
}

// SaveCatalog inserts cat or replaces the stored catalog with the same name.
func (s *Store) SaveCatalog(ctx context.Context, cat types.Catalog) (CatalogRecord, error) {
	if cat.Name == "" {
		return CatalogRecord{}, fmt.Errorf("catalog name is required")
	}
	doc, err := json.MarshalToString(cat)
	if err != nil {
		return CatalogRecord{}, fmt.Errorf("catalog %q: encode: %w", cat.Name, err)
	}

	now := time.Now().UTC()
	if _, err := s.queries.ExecContext(ctx, "upsert-catalog",
		string(types.NewCatalogID()), cat.Name, doc, now, now); err != nil {
		return CatalogRecord{}, fmt.Errorf("catalog %q: save: %w", cat.Name, err)
	}
	return s.GetCatalog(ctx, cat.Name)
}

// GetCatalog returns the stored catalog named name, or types.ErrCatalogNotFound.
func (s *Store) GetCatalog(ctx context.Context, name string) (CatalogRecord, error) {
	var row catalogRow
	err := s.queries.GetContext(ctx, "get-catalog", &row, name)
	if errors.Is(err, sql.ErrNoRows) {
		return CatalogRecord{}, fmt.Errorf("catalog %q: %w", name, types.ErrCatalogNotFound)
	}
	if err != nil {
		return CatalogRecord{}, fmt.Errorf("catalog %q: load: %w", name, err)
	}
	return row.record()
}

// ListCatalogs returns every stored catalog ordered by name.
func (s *Store) ListCatalogs(ctx context.Context) ([]CatalogRecord, error) {
	var rows []catalogRow
	if err := s.queries.SelectContext(ctx, "list-catalogs", &rows); err != nil {
		return nil, fmt.Errorf("list catalogs: %w", err)
	}

	records := make([]CatalogRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// DeleteCatalog removes the catalog named name, or returns types.ErrCatalogNotFound.
func (s *Store) DeleteCatalog(ctx context.Context, name string) error {
	res, err := s.queries.ExecContext(ctx, "delete-catalog", name)
	if err != nil {
		return fmt.Errorf("catalog %q: delete: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog %q: delete: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("catalog %q: %w", name, types.ErrCatalogNotFound)
	}
	return nil
}

// Catalogs returns every stored catalog; it satisfies rules.Source.
func (s *Store) Catalogs(ctx context.Context) ([]types.Catalog, error) {
	records, err := s.ListCatalogs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Catalog, len(records))
	for i, r := range records {
		out[i] = r.Catalog
	}
	return out, nil
}

// SaveSchema replaces the stored record schema (property -> type name).
func (s *Store) SaveSchema(ctx context.Context, schema map[string]string) error {
	now := time.Now().UTC()
	return s.queries.WithTx(ctx, func(tx *TxQueries) error {
		if _, err := tx.ExecContext(ctx, "delete-schema-properties"); err != nil {
			return fmt.Errorf("clear schema: %w", err)
		}
		for prop, typeName := range schema {
			if _, err := tx.ExecContext(ctx, "upsert-schema-property", prop, typeName, now); err != nil {
				return fmt.Errorf("schema property %q: %w", prop, err)
			}
		}
		return nil
	})
}

// Schema returns the stored record schema; empty when none was saved.
func (s *Store) Schema(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Property string `db:"property"`
		TypeName string `db:"type_name"`
	}
	if err := s.queries.SelectContext(ctx, "list-schema-properties", &rows); err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	schema := make(map[string]string, len(rows))
	for _, r := range rows {
		schema[r.Property] = r.TypeName
	}
	return schema, nil
}
