package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the database surface the collections store needs. Both
// *pgxpool.Pool and pgx.Tx satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Collection groups ingested files for scoped retrieval.
type Collection struct {
	ID          string
	UserID      string
	Name        string
	Description string
}

// CollectionFile is one file registered under a collection.
type CollectionFile struct {
	FileID       string
	CollectionID string
	Filename     string
}

// Collections manages collection records and resolves name scopes to file
// id sets.
type Collections struct {
	db     Querier
	logger *slog.Logger
}

// NewCollections creates a Collections store.
func NewCollections(db Querier, logger *slog.Logger) *Collections {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collections{db: db, logger: logger}
}

// Create adds a collection and returns its id.
func (c *Collections) Create(ctx context.Context, userID, name, description string) (string, error) {
	if userID == "" || name == "" {
		return "", errors.New("user id and collection name must not be empty")
	}

	id := uuid.NewString()
	if _, err := c.db.Exec(ctx, `
INSERT INTO collections (id, user_id, name, description)
VALUES ($1, $2, $3, $4)`,
		id, userID, name, description,
	); err != nil {
		return "", fmt.Errorf("create collection %q: %w", name, err)
	}
	return id, nil
}

// List returns the user's collections, newest first.
func (c *Collections) List(ctx context.Context, userID string) ([]Collection, error) {
	rows, err := c.db.Query(ctx, `
SELECT id, user_id, name, COALESCE(description, '')
FROM collections
WHERE user_id = $1
ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var collections []Collection
	for rows.Next() {
		var col Collection
		if err := rows.Scan(&col.ID, &col.UserID, &col.Name, &col.Description); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		collections = append(collections, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}
	return collections, nil
}

// Delete removes a collection. Its file registrations go by cascade; the
// chunks themselves stay, they just lose their collection scope.
func (c *Collections) Delete(ctx context.Context, userID, collectionID string) error {
	if _, err := c.db.Exec(ctx, `
DELETE FROM collections WHERE user_id = $1 AND id = $2`,
		userID, collectionID,
	); err != nil {
		return fmt.Errorf("delete collection %q: %w", collectionID, err)
	}
	return nil
}

// SearchIndex runs the coarse scope resolution for a query: collections
// whose name or description contains the query text, and registered files
// whose filename contains it, both matched case-insensitively. The two
// result sets are independent; a file can match without its collection
// matching and vice versa.
func (c *Collections) SearchIndex(ctx context.Context, userID, query string) (collectionIDs, fileIDs []string, err error) {
	rows, err := c.db.Query(ctx, `
SELECT id
FROM collections
WHERE user_id = $1
  AND (name ILIKE '%' || $2 || '%' OR COALESCE(description, '') ILIKE '%' || $2 || '%')
ORDER BY id`,
		userID, query)
	if err != nil {
		return nil, nil, fmt.Errorf("search collections index: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, nil, fmt.Errorf("scan collection id: %w", err)
		}
		collectionIDs = append(collectionIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate collection ids: %w", err)
	}

	fileRows, err := c.db.Query(ctx, `
SELECT file_id
FROM collection_files
WHERE user_id = $1 AND filename ILIKE '%' || $2 || '%'
ORDER BY file_id`,
		userID, query)
	if err != nil {
		return nil, nil, fmt.Errorf("search files index: %w", err)
	}
	defer fileRows.Close()

	for fileRows.Next() {
		var id string
		if err := fileRows.Scan(&id); err != nil {
			return nil, nil, fmt.Errorf("scan file id: %w", err)
		}
		fileIDs = append(fileIDs, id)
	}
	if err := fileRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate file ids: %w", err)
	}
	return collectionIDs, fileIDs, nil
}

// FilesOfCollections returns the file ids registered under the given
// collection ids. Unknown ids contribute nothing; an empty id set yields
// an empty slice.
func (c *Collections) FilesOfCollections(ctx context.Context, userID string, collectionIDs []string) ([]string, error) {
	if len(collectionIDs) == 0 {
		return nil, nil
	}
	rows, err := c.db.Query(ctx, `
SELECT DISTINCT file_id
FROM collection_files
WHERE user_id = $1 AND collection_id = ANY($2)
ORDER BY file_id`,
		userID, collectionIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve collection files: %w", err)
	}
	defer rows.Close()

	var fileIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan collection file: %w", err)
		}
		fileIDs = append(fileIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection files: %w", err)
	}
	return fileIDs, nil
}

// ListFiles returns the files registered under a collection id.
func (c *Collections) ListFiles(ctx context.Context, userID, collectionID string) ([]CollectionFile, error) {
	rows, err := c.db.Query(ctx, `
SELECT file_id, collection_id, filename
FROM collection_files
WHERE user_id = $1 AND collection_id = $2
ORDER BY filename`,
		userID, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list collection files: %w", err)
	}
	defer rows.Close()

	var files []CollectionFile
	for rows.Next() {
		var f CollectionFile
		if err := rows.Scan(&f.FileID, &f.CollectionID, &f.Filename); err != nil {
			return nil, fmt.Errorf("scan collection file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection files: %w", err)
	}
	return files, nil
}
