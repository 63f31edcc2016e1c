package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Repository exposes generic map-record CRUD over bound resource tables. It
// satisfies the access engine's Repository capability for target resolution
// and serves the transport layer's persistence needs.
type Repository struct {
	store  *Store
	tables map[string]string
}

// NewRepository binds resource type names to table names. Only bound
// resources are reachable; anything else errors instead of interpolating
// caller input into SQL.
func NewRepository(s *Store, tables map[string]string) *Repository {
	copied := make(map[string]string, len(tables))
	for resource, table := range tables {
		copied[resource] = table
	}
	return &Repository{store: s, tables: copied}
}

// ErrUnknownResource means the resource has no table binding.
var ErrUnknownResource = errors.New("unknown resource")

func (r *Repository) table(resource string) (string, error) {
	table, ok := r.tables[resource]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	return table, nil
}

// FindByID fetches one record, or (nil, nil) when it does not exist. The
// access engine treats both errors and nil as an absent target.
func (r *Repository) FindByID(ctx context.Context, resource, id string) (map[string]any, error) {
	table, err := r.table(resource)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE id = %s", table, r.store.placeholder(1))
	row, err := QueryRow(ctx, r.store.DB, query, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return row, err
}

// List returns up to limit records with the given offset, newest first.
func (r *Repository) List(ctx context.Context, resource string, limit, offset int) ([]map[string]any, error) {
	table, err := r.table(resource)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY created_at DESC LIMIT %d OFFSET %d", table, limit, offset)
	return QueryRows(ctx, r.store.DB, query)
}

// Insert writes a new record, assigning a uuid id when the payload has
// none, and returns the stored record.
func (r *Repository) Insert(ctx context.Context, resource string, record map[string]any) (map[string]any, error) {
	table, err := r.table(resource)
	if err != nil {
		return nil, err
	}
	if _, ok := record["id"]; !ok {
		record["id"] = uuid.New().String()
	}

	columns := sortedColumns(record)
	if err := validateColumns(columns); err != nil {
		return nil, err
	}

	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		placeholders[i] = r.store.placeholder(i + 1)
		args[i] = record[col]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	if _, err := r.store.DB.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
	return r.FindByID(ctx, resource, fmt.Sprintf("%v", record["id"]))
}

// Update applies the given fields to one record and returns the updated
// record. An empty payload (everything projected away) is a no-op read.
func (r *Repository) Update(ctx context.Context, resource, id string, fields map[string]any) (map[string]any, error) {
	table, err := r.table(resource)
	if err != nil {
		return nil, err
	}
	delete(fields, "id")
	if len(fields) == 0 {
		return r.FindByID(ctx, resource, id)
	}

	columns := sortedColumns(fields)
	if err := validateColumns(columns); err != nil {
		return nil, err
	}

	sets := make([]string, len(columns))
	args := make([]any, 0, len(columns)+1)
	for i, col := range columns {
		sets[i] = fmt.Sprintf("%s = %s", col, r.store.placeholder(i+1))
		args = append(args, fields[col])
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s",
		table, strings.Join(sets, ", "), r.store.placeholder(len(columns)+1))
	result, err := r.store.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, resource, id)
}

// Delete removes one record.
func (r *Repository) Delete(ctx context.Context, resource, id string) error {
	table, err := r.table(resource)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = %s", table, r.store.placeholder(1))
	result, err := r.store.DB.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindUserByEmail looks up a user record for login.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (map[string]any, error) {
	table, err := r.table("users")
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE email = %s", table, r.store.placeholder(1))
	return QueryRow(ctx, r.store.DB, query, email)
}

func sortedColumns(record map[string]any) []string {
	columns := make([]string, 0, len(record))
	for col := range record {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}

// validateColumns restricts column names to identifier characters; payload
// keys end up in SQL text, bound values never do.
func validateColumns(columns []string) error {
	for _, col := range columns {
		if col == "" {
			return fmt.Errorf("empty column name")
		}
		for i := 0; i < len(col); i++ {
			c := col[i]
			ok := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (i > 0 && c >= '0' && c <= '9')
			if !ok {
				return fmt.Errorf("invalid column name %q", col)
			}
		}
	}
	return nil
}
