package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	s := &Store{DB: db, driver: "sqlite"}
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

func TestRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testStore(t), map[string]string{"users": "users"})

	record, err := repo.Insert(ctx, "users", map[string]any{
		"email":         "ana@b.c",
		"password_hash": "x",
		"name":          "ana",
		"role":          "influencer",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	id, _ := record["id"].(string)
	if id == "" {
		t.Fatal("expected generated uuid id")
	}

	found, err := repo.FindByID(ctx, "users", id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found["email"] != "ana@b.c" {
		t.Fatalf("expected stored record, got %v", found)
	}

	updated, err := repo.Update(ctx, "users", id, map[string]any{"name": "ana maria"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated["name"] != "ana maria" {
		t.Fatalf("expected updated name, got %v", updated)
	}

	if err := repo.Delete(ctx, "users", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	gone, err := repo.FindByID(ctx, "users", id)
	if err != nil {
		t.Fatalf("find after delete: %v", err)
	}
	if gone != nil {
		t.Fatalf("expected absent record, got %v", gone)
	}
}

func TestRepositoryAbsentIsNilNotError(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testStore(t), map[string]string{"users": "users"})

	record, err := repo.FindByID(ctx, "users", "nope")
	if err != nil {
		t.Fatalf("expected nil error for absent record, got %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil record, got %v", record)
	}
}

func TestRepositoryUnknownResource(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testStore(t), map[string]string{"users": "users"})

	_, err := repo.FindByID(ctx, "payments", "1")
	if !errors.Is(err, ErrUnknownResource) {
		t.Fatalf("expected ErrUnknownResource, got %v", err)
	}
}

func TestRepositoryRejectsHostileColumnNames(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testStore(t), map[string]string{"users": "users"})

	_, err := repo.Insert(ctx, "users", map[string]any{
		"email":           "x@b.c",
		"password_hash":   "x",
		"name; DROP name": "x",
	})
	if err == nil {
		t.Fatal("expected rejection of non-identifier column name")
	}
}

func TestRepositoryUpdateMissingRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testStore(t), map[string]string{"users": "users"})

	_, err := repo.Update(ctx, "users", "nope", map[string]any{"name": "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
