package knowledge_test

import (
	"context"
	"testing"

	"github.com/koopa0/korpus/internal/knowledge"
	"github.com/koopa0/korpus/internal/testutil"
)

func registerFile(t *testing.T, db *testutil.TestDBContainer, fileID, collectionID, userID, filename string) {
	t.Helper()
	_, err := db.Pool.Exec(context.Background(), `
INSERT INTO collection_files (file_id, collection_id, user_id, filename)
VALUES ($1, $2, $3, $4)`,
		fileID, collectionID, userID, filename)
	if err != nil {
		t.Fatalf("register file failed: %v", err)
	}
}

func TestCollectionsIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	db := testutil.SetupTestDB(t)
	c := knowledge.NewCollections(db.Pool, nil)
	ctx := context.Background()

	docsID, err := c.Create(ctx, "u1", "My Docs", "project documentation")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	notesID, err := c.Create(ctx, "u1", "Notes", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	otherID, err := c.Create(ctx, "u2", "Docs", "someone else's docs")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	registerFile(t, db, "f1", docsID, "u1", "guide.md")
	registerFile(t, db, "f2", docsID, "u1", "api.md")
	registerFile(t, db, "f9", otherID, "u2", "private.md")

	t.Run("list is scoped to the user", func(t *testing.T) {
		collections, err := c.List(ctx, "u1")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(collections) != 2 {
			t.Fatalf("got %d collections, want 2", len(collections))
		}
		for _, col := range collections {
			if col.UserID != "u1" {
				t.Errorf("leaked collection %q owned by %q", col.Name, col.UserID)
			}
		}
	})

	t.Run("search index matches names case-insensitively", func(t *testing.T) {
		collectionIDs, fileIDs, err := c.SearchIndex(ctx, "u1", "docs")
		if err != nil {
			t.Fatalf("SearchIndex failed: %v", err)
		}
		if len(collectionIDs) != 1 || collectionIDs[0] != docsID {
			t.Errorf("collections = %v, want [%s]", collectionIDs, docsID)
		}
		if len(fileIDs) != 0 {
			t.Errorf("no filename contains docs, got %v", fileIDs)
		}
	})

	t.Run("search index matches descriptions", func(t *testing.T) {
		collectionIDs, _, err := c.SearchIndex(ctx, "u1", "documentation")
		if err != nil {
			t.Fatalf("SearchIndex failed: %v", err)
		}
		if len(collectionIDs) != 1 || collectionIDs[0] != docsID {
			t.Errorf("collections = %v, want [%s]", collectionIDs, docsID)
		}
	})

	t.Run("search index matches filenames", func(t *testing.T) {
		collectionIDs, fileIDs, err := c.SearchIndex(ctx, "u1", "guide")
		if err != nil {
			t.Fatalf("SearchIndex failed: %v", err)
		}
		if len(collectionIDs) != 0 {
			t.Errorf("collections = %v, want none", collectionIDs)
		}
		if len(fileIDs) != 1 || fileIDs[0] != "f1" {
			t.Errorf("files = %v, want [f1]", fileIDs)
		}
	})

	t.Run("search index never crosses users", func(t *testing.T) {
		collectionIDs, fileIDs, err := c.SearchIndex(ctx, "u1", "private")
		if err != nil {
			t.Fatalf("SearchIndex failed: %v", err)
		}
		if len(collectionIDs)+len(fileIDs) != 0 {
			t.Errorf("leaked u2's data: collections=%v files=%v", collectionIDs, fileIDs)
		}
	})

	t.Run("files of collections", func(t *testing.T) {
		fileIDs, err := c.FilesOfCollections(ctx, "u1", []string{docsID})
		if err != nil {
			t.Fatalf("FilesOfCollections failed: %v", err)
		}
		if len(fileIDs) != 2 || fileIDs[0] != "f1" || fileIDs[1] != "f2" {
			t.Errorf("files = %v, want [f1 f2]", fileIDs)
		}

		empty, err := c.FilesOfCollections(ctx, "u1", []string{notesID})
		if err != nil {
			t.Fatalf("FilesOfCollections failed: %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("empty collection resolved to %v", empty)
		}

		crossed, err := c.FilesOfCollections(ctx, "u1", []string{otherID})
		if err != nil {
			t.Fatalf("FilesOfCollections failed: %v", err)
		}
		if len(crossed) != 0 {
			t.Errorf("resolution crossed users: %v", crossed)
		}
	})

	t.Run("list files", func(t *testing.T) {
		files, err := c.ListFiles(ctx, "u1", docsID)
		if err != nil {
			t.Fatalf("ListFiles failed: %v", err)
		}
		if len(files) != 2 {
			t.Fatalf("got %d files, want 2", len(files))
		}
		// Ordered by filename.
		if files[0].Filename != "api.md" || files[1].Filename != "guide.md" {
			t.Errorf("files = %v", files)
		}
	})

	t.Run("delete cascades registrations", func(t *testing.T) {
		if err := c.Delete(ctx, "u1", notesID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := c.Delete(ctx, "u1", docsID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		var count int
		err := db.Pool.QueryRow(ctx,
			`SELECT count(*) FROM collection_files WHERE user_id = 'u1'`).Scan(&count)
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 0 {
			t.Errorf("registrations survived the cascade: %d", count)
		}

		// u2's collection is untouched.
		remaining, err := c.List(ctx, "u2")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(remaining) != 1 {
			t.Errorf("u2 collections = %d, want 1", len(remaining))
		}
	})
}
