package docstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/calyptra/intelgraph/internal/record"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is the durable Store adapter. One row per document; reference
// sets are stored as sorted JSON array text.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite creates or opens the database at path. WAL mode keeps
// reads concurrent with the single writer; the connection pool is
// pinned to one connection to avoid SQLITE_BUSY on writes.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &StoreUnavailableError{Err: fmt.Errorf("open database: %w", err)}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StoreUnavailableError{Err: fmt.Errorf("connect: %w", err)}
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, &StoreUnavailableError{Err: fmt.Errorf("execute %q: %w", pragma, err)}
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, &StoreUnavailableError{Err: fmt.Errorf("apply schema: %w", err)}
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

const documentColumns = "hash, kind, sub_type, payload, direct_refs, transitive_refs, parent_refs, orgid, timestamp, category, benign_refs, malicious_refs, admin_refs, member_refs, acl"

// Find returns matching documents ordered by hash for stable results.
func (s *SQLite) Find(ctx context.Context, filter Filter, projection Projection) ([]record.Document, error) {
	where, params, err := compileFilter(filter)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + documentColumns + " FROM documents" + where +
		" ORDER BY hash COLLATE BINARY ASC"
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, &StoreUnavailableError{Err: fmt.Errorf("query documents: %w", err)}
	}
	defer rows.Close()

	out := []record.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, project(doc, projection))
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreUnavailableError{Err: fmt.Errorf("iterate documents: %w", err)}
	}
	return out, nil
}

// FindOne returns the first match in hash order, or nil when absent.
func (s *SQLite) FindOne(ctx context.Context, filter Filter, projection Projection) (*record.Document, error) {
	where, params, err := compileFilter(filter)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + documentColumns + " FROM documents" + where +
		" ORDER BY hash COLLATE BINARY ASC LIMIT 1"
	row := s.db.QueryRowContext(ctx, query, params...)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	projected := project(doc, projection)
	return &projected, nil
}

// InsertOne inserts doc with insert-or-fetch-by-hash semantics: on a
// hash conflict the stored document wins and is returned unchanged.
func (s *SQLite) InsertOne(ctx context.Context, doc record.Document) (record.Document, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`,
		doc.Hash,
		doc.Kind,
		doc.SubType,
		doc.Payload,
		encodeRefs(doc.DirectRefs),
		encodeRefs(doc.TransitiveRefs),
		encodeRefs(doc.ParentRefs),
		doc.OrgID,
		doc.Timestamp,
		doc.Category,
		encodeRefs(doc.BenignRefs),
		encodeRefs(doc.MaliciousRefs),
		encodeRefs(doc.AdminRefs),
		encodeRefs(doc.MemberRefs),
		encodeRefs(doc.ACL),
	)
	if err != nil {
		return record.Document{}, false, &StoreUnavailableError{Err: fmt.Errorf("insert document: %w", err)}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return record.Document{}, false, &StoreUnavailableError{Err: fmt.Errorf("insert document: %w", err)}
	}
	if affected > 0 {
		return doc, true, nil
	}

	// Lost the race or re-inserted an existing record: fetch the winner.
	existing, err := s.FindOne(ctx, Filter{record.FieldHash: Eq(doc.Hash)}, nil)
	if err != nil {
		return record.Document{}, false, err
	}
	if existing == nil {
		return record.Document{}, false, &StoreUnavailableError{Err: fmt.Errorf("document %s vanished after conflict", doc.Hash)}
	}
	return *existing, false, nil
}

// UpdateOne applies the update to the first matching document.
func (s *SQLite) UpdateOne(ctx context.Context, filter Filter, update Update) error {
	_, err := s.applyUpdates(ctx, filter, update, 1)
	return err
}

// UpdateMany applies the update to every matching document.
func (s *SQLite) UpdateMany(ctx context.Context, filter Filter, update Update) (int64, error) {
	return s.applyUpdates(ctx, filter, update, 0)
}

// applyUpdates reads matching rows, applies the update in Go, and
// writes them back inside one transaction. Set-valued updates need the
// decoded arrays, so a read-modify-write beats sql-side JSON surgery.
func (s *SQLite) applyUpdates(ctx context.Context, filter Filter, update Update, limit int) (int64, error) {
	docs, err := s.Find(ctx, filter, nil)
	if err != nil {
		return 0, err
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &StoreUnavailableError{Err: fmt.Errorf("begin update: %w", err)}
	}
	defer tx.Rollback() // No-op if committed

	for i := range docs {
		applyUpdate(&docs[i], update)
		_, err := tx.ExecContext(ctx, `
			UPDATE documents SET
				direct_refs = ?, transitive_refs = ?, parent_refs = ?, orgid = ?,
				timestamp = ?, category = ?, benign_refs = ?,
				malicious_refs = ?, admin_refs = ?, member_refs = ?, acl = ?
			WHERE hash = ?
		`,
			encodeRefs(docs[i].DirectRefs),
			encodeRefs(docs[i].TransitiveRefs),
			encodeRefs(docs[i].ParentRefs),
			docs[i].OrgID,
			docs[i].Timestamp,
			docs[i].Category,
			encodeRefs(docs[i].BenignRefs),
			encodeRefs(docs[i].MaliciousRefs),
			encodeRefs(docs[i].AdminRefs),
			encodeRefs(docs[i].MemberRefs),
			encodeRefs(docs[i].ACL),
			docs[i].Hash,
		)
		if err != nil {
			return 0, &StoreUnavailableError{Err: fmt.Errorf("update document %s: %w", docs[i].Hash, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &StoreUnavailableError{Err: fmt.Errorf("commit update: %w", err)}
	}
	return int64(len(docs)), nil
}

// Count returns the number of matching documents.
func (s *SQLite) Count(ctx context.Context, filter Filter) (int64, error) {
	where, params, err := compileFilter(filter)
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents"+where, params...).Scan(&n)
	if err != nil {
		return 0, &StoreUnavailableError{Err: fmt.Errorf("count documents: %w", err)}
	}
	return n, nil
}

// Aggregate runs the pipeline: the leading match is pushed down to SQL,
// the remaining stages run over the result set.
func (s *SQLite) Aggregate(ctx context.Context, pipeline []Stage) ([]record.Document, error) {
	var head Filter
	rest := pipeline
	if len(pipeline) > 0 && pipeline[0].Match != nil {
		head = pipeline[0].Match
		if pipeline[0].SortBy == "" && pipeline[0].Limit == 0 {
			rest = pipeline[1:]
		} else {
			// Keep the stage for its sort/limit but skip re-matching.
			trimmed := pipeline[0]
			trimmed.Match = nil
			rest = append([]Stage{trimmed}, pipeline[1:]...)
		}
	}

	docs, err := s.Find(ctx, head, nil)
	if err != nil {
		return nil, err
	}
	return runPipeline(docs, rest), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (record.Document, error) {
	var doc record.Document
	var direct, transitive, parents, benign, malicious, admins, members, acl string
	err := row.Scan(
		&doc.Hash,
		&doc.Kind,
		&doc.SubType,
		&doc.Payload,
		&direct,
		&transitive,
		&parents,
		&doc.OrgID,
		&doc.Timestamp,
		&doc.Category,
		&benign,
		&malicious,
		&admins,
		&members,
		&acl,
	)
	if err == sql.ErrNoRows {
		return record.Document{}, err
	}
	if err != nil {
		return record.Document{}, &StoreUnavailableError{Err: fmt.Errorf("scan document: %w", err)}
	}

	for _, pair := range []struct {
		raw  string
		dest *[]string
	}{
		{direct, &doc.DirectRefs},
		{transitive, &doc.TransitiveRefs},
		{parents, &doc.ParentRefs},
		{benign, &doc.BenignRefs},
		{malicious, &doc.MaliciousRefs},
		{admins, &doc.AdminRefs},
		{members, &doc.MemberRefs},
		{acl, &doc.ACL},
	} {
		refs, err := decodeRefs(pair.raw)
		if err != nil {
			return record.Document{}, fmt.Errorf("document %s: %w", doc.Hash, err)
		}
		*pair.dest = refs
	}
	return doc, nil
}

func encodeRefs(refs []string) string {
	if len(refs) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(refs) // []string cannot fail
	return string(data)
}

func decodeRefs(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var refs []string
	if err := json.Unmarshal([]byte(raw), &refs); err != nil {
		return nil, fmt.Errorf("decode refs: %w", err)
	}
	return refs, nil
}
