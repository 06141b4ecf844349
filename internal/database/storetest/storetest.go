// Package storetest holds the behavioural checks every identity store
// backend must pass. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
)

// Identity returns a valid record with a dim-sized embedding derived from seed.
func Identity(name string, dim int, seed float32) database.StoredIdentity {
	embedding := make([]float32, dim)
	for i := range embedding {
		embedding[i] = seed + float32(i)/float32(dim)
	}
	return database.StoredIdentity{
		Name:         name,
		Embedding:    embedding,
		Description:  name + " description",
		Affiliation:  "Independent",
		ImageSources: []string{name + "/1.jpg", name + "/2.jpg"},
		ImageCount:   2,
		UpdatedAt:    time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}
}

// Run exercises store through the full IdentityWriter contract. The store
// must be empty when Run starts.
func Run(t *testing.T, store database.IdentityWriter, dim int) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		got, err := store.Get(ctx, "nobody")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil for missing identity, got %+v", got)
		}
	})

	t.Run("UpsertAndGet", func(t *testing.T) {
		want := Identity("Alice", dim, 0.1)
		if err := store.Upsert(ctx, want); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		got, err := store.Get(ctx, "Alice")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected identity, got nil")
		}
		assertEqual(t, want, *got)
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		replacement := Identity("Alice", dim, 0.5)
		replacement.Description = "replaced"
		replacement.ImageSources = []string{"alice/new.jpg"}
		replacement.ImageCount = 1
		if err := store.Upsert(ctx, replacement); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		got, err := store.Get(ctx, "Alice")
		if err != nil || got == nil {
			t.Fatalf("Get failed: %v", err)
		}
		assertEqual(t, replacement, *got)

		count, err := store.Count(ctx)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != 1 {
			t.Errorf("expected 1 identity after replace, got %d", count)
		}
	})

	t.Run("UpsertRejectsInvalid", func(t *testing.T) {
		bad := Identity("Broken", dim, 0)
		bad.ImageCount = 5
		if err := store.Upsert(ctx, bad); !errors.Is(err, database.ErrImageCountMismatch) {
			t.Errorf("expected ErrImageCountMismatch, got %v", err)
		}
		bad = Identity("", dim, 0)
		if err := store.Upsert(ctx, bad); !errors.Is(err, database.ErrEmptyName) {
			t.Errorf("expected ErrEmptyName, got %v", err)
		}
	})

	t.Run("ListInsertionOrder", func(t *testing.T) {
		for i, name := range []string{"Bob", "Carol", "Dave"} {
			if err := store.Upsert(ctx, Identity(name, dim, float32(i+1))); err != nil {
				t.Fatalf("Upsert %s failed: %v", name, err)
			}
		}
		// Replacing an existing record keeps its position.
		if err := store.Upsert(ctx, Identity("Alice", dim, 0.9)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		list, err := store.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		names := make([]string, len(list))
		for i, s := range list {
			names[i] = s.Name
		}
		want := []string{"Alice", "Bob", "Carol", "Dave"}
		if fmt.Sprint(names) != fmt.Sprint(want) {
			t.Errorf("expected order %v, got %v", want, names)
		}
	})

	t.Run("UpdateMetadataOnly", func(t *testing.T) {
		before, _ := store.Get(ctx, "Bob")
		if before == nil {
			t.Fatal("Bob missing")
		}
		upd := database.IdentityUpdate{
			Name:        "Bob",
			Description: "new description",
			Affiliation: "Green",
			UpdatedAt:   time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		}
		found, err := store.Update(ctx, "Bob", upd)
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if !found {
			t.Fatal("expected Bob to be found")
		}

		got, _ := store.Get(ctx, "Bob")
		assertEqual(t, upd.Apply(*before), *got)
	})

	t.Run("UpdateRenameWithEmbedding", func(t *testing.T) {
		replacement := Identity("Robert", dim, 7)
		upd := database.IdentityUpdate{
			Name:        "Robert",
			Description: "renamed",
			UpdatedAt:   time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
			Embedding: &database.EmbeddingUpdate{
				Embedding:    replacement.Embedding,
				ImageSources: []string{"robert/a.jpg", "robert/b.jpg", "robert/c.jpg"},
			},
		}
		found, err := store.Update(ctx, "Bob", upd)
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if !found {
			t.Fatal("expected Bob to be found")
		}

		if old, _ := store.Get(ctx, "Bob"); old != nil {
			t.Error("expected old name to be gone after rename")
		}
		got, _ := store.Get(ctx, "Robert")
		if got == nil {
			t.Fatal("expected renamed identity")
		}
		if got.ImageCount != 3 {
			t.Errorf("expected image count 3, got %d", got.ImageCount)
		}
		assertEmbedding(t, replacement.Embedding, got.Embedding)
	})

	t.Run("UpdateRenameConflict", func(t *testing.T) {
		upd := database.IdentityUpdate{Name: "Carol", UpdatedAt: time.Now()}
		_, err := store.Update(ctx, "Dave", upd)
		if !errors.Is(err, database.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
		if dave, _ := store.Get(ctx, "Dave"); dave == nil {
			t.Error("Dave should be untouched after a failed rename")
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		found, err := store.Update(ctx, "nobody", database.IdentityUpdate{Name: "nobody"})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if found {
			t.Error("expected not found")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		found, err := store.Delete(ctx, "Carol")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if !found {
			t.Error("expected Carol to be deleted")
		}
		found, err = store.Delete(ctx, "Carol")
		if err != nil {
			t.Fatalf("second Delete failed: %v", err)
		}
		if found {
			t.Error("expected second delete to report not found")
		}

		count, _ := store.Count(ctx)
		if count != 3 {
			t.Errorf("expected 3 identities left, got %d", count)
		}
	})
}

func assertEqual(t *testing.T, want, got database.StoredIdentity) {
	t.Helper()
	if got.Name != want.Name {
		t.Errorf("name: want %q, got %q", want.Name, got.Name)
	}
	if got.Description != want.Description {
		t.Errorf("description: want %q, got %q", want.Description, got.Description)
	}
	if got.Affiliation != want.Affiliation {
		t.Errorf("affiliation: want %q, got %q", want.Affiliation, got.Affiliation)
	}
	if fmt.Sprint(got.ImageSources) != fmt.Sprint(want.ImageSources) {
		t.Errorf("image sources: want %v, got %v", want.ImageSources, got.ImageSources)
	}
	if got.ImageCount != want.ImageCount {
		t.Errorf("image count: want %d, got %d", want.ImageCount, got.ImageCount)
	}
	if !database.Day(got.UpdatedAt).Equal(database.Day(want.UpdatedAt)) {
		t.Errorf("updated at: want %v, got %v", want.UpdatedAt, got.UpdatedAt)
	}
	assertEmbedding(t, want.Embedding, got.Embedding)
}

func assertEmbedding(t *testing.T, want, got []float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("embedding length: want %d, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("embedding[%d]: want %v, got %v", i, want[i], got[i])
		}
	}
}
