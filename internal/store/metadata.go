package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	scripterrors "github.com/trieloff/scriptrag/internal/errors"
)

// Scene is a screenplay scene row.
type Scene struct {
	ID          string
	Project     string
	Season      int
	Episode     int
	ScriptOrder int
	Heading     string
	Location    string
	TimeOfDay   string
	Content     string
}

// ScriptLine is one dialogue or action line inside a scene.
type ScriptLine struct {
	ID            string
	SceneID       string
	LineType      string // "dialogue" or "action"
	Character     string
	Parenthetical string
	Content       string
}

// BibleChunk is one chunk of a reference (bible) document.
type BibleChunk struct {
	ID         string
	Project    string
	Document   string
	Heading    string
	ChunkIndex int
	Content    string
}

// memDBCounter disambiguates shared in-memory databases across tests.
var memDBCounter atomic.Int64

// MetadataStore persists screenplay entities in SQLite and provides the
// read-only connection the search engine queries against. Schema
// migrations beyond initial creation are out of scope here.
type MetadataStore struct {
	mu     sync.Mutex
	db     *sql.DB
	reader *sql.DB
	dsn    string
	closed bool
}

// NewMetadataStore opens (or creates) the database at path. An empty
// path creates a shared in-memory database for testing.
func NewMetadataStore(path string) (*MetadataStore, error) {
	var dsn, readerDSN string
	if path == "" {
		name := fmt.Sprintf("scriptragmem%d", memDBCounter.Add(1))
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
		readerDSN = dsn + "&_pragma=query_only(1)"
	} else {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		readerDSN = "file:" + path + "?mode=ro&_pragma=query_only(1)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, scripterrors.Wrap(scripterrors.ErrCodeStoreWrite, err)
	}

	s := &MetadataStore{db: db, dsn: readerDSN}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MetadataStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scenes (
		id           TEXT PRIMARY KEY,
		project      TEXT NOT NULL,
		season       INTEGER NOT NULL DEFAULT 0,
		episode      INTEGER NOT NULL DEFAULT 0,
		script_order INTEGER NOT NULL DEFAULT 0,
		heading      TEXT NOT NULL,
		location     TEXT NOT NULL DEFAULT '',
		time_of_day  TEXT NOT NULL DEFAULT '',
		content      TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS script_lines (
		id            TEXT PRIMARY KEY,
		scene_id      TEXT NOT NULL REFERENCES scenes(id) ON DELETE CASCADE,
		line_type     TEXT NOT NULL,
		character     TEXT NOT NULL DEFAULT '',
		parenthetical TEXT NOT NULL DEFAULT '',
		content       TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS bible_chunks (
		id          TEXT PRIMARY KEY,
		project     TEXT NOT NULL,
		document    TEXT NOT NULL,
		heading     TEXT NOT NULL DEFAULT '',
		chunk_index INTEGER NOT NULL DEFAULT 0,
		content     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scenes_project ON scenes(project, season, episode);
	CREATE INDEX IF NOT EXISTS idx_lines_scene ON script_lines(scene_id);
	CREATE INDEX IF NOT EXISTS idx_lines_character ON script_lines(character);
	CREATE INDEX IF NOT EXISTS idx_bible_project ON bible_chunks(project);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return scripterrors.New(scripterrors.ErrCodeStoreWrite, "cannot create schema", err)
	}
	return nil
}

// SaveScenes upserts scenes in one transaction.
func (s *MetadataStore) SaveScenes(ctx context.Context, scenes []*Scene) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO scenes (id, project, season, episode, script_order, heading, location, time_of_day, content)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				project=excluded.project, season=excluded.season, episode=excluded.episode,
				script_order=excluded.script_order, heading=excluded.heading,
				location=excluded.location, time_of_day=excluded.time_of_day,
				content=excluded.content`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, sc := range scenes {
			if _, err := stmt.ExecContext(ctx, sc.ID, sc.Project, sc.Season, sc.Episode,
				sc.ScriptOrder, sc.Heading, sc.Location, sc.TimeOfDay, sc.Content); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveLines upserts dialogue/action lines in one transaction.
func (s *MetadataStore) SaveLines(ctx context.Context, lines []*ScriptLine) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO script_lines (id, scene_id, line_type, character, parenthetical, content)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				scene_id=excluded.scene_id, line_type=excluded.line_type,
				character=excluded.character, parenthetical=excluded.parenthetical,
				content=excluded.content`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, ln := range lines {
			if _, err := stmt.ExecContext(ctx, ln.ID, ln.SceneID, ln.LineType,
				ln.Character, ln.Parenthetical, ln.Content); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveBibleChunks upserts bible chunks in one transaction.
func (s *MetadataStore) SaveBibleChunks(ctx context.Context, chunks []*BibleChunk) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO bible_chunks (id, project, document, heading, chunk_index, content)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				project=excluded.project, document=excluded.document, heading=excluded.heading,
				chunk_index=excluded.chunk_index, content=excluded.content`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range chunks {
			if _, err := stmt.ExecContext(ctx, c.ID, c.Project, c.Document,
				c.Heading, c.ChunkIndex, c.Content); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteScene removes a scene and, via cascade, its lines.
func (s *MetadataStore) DeleteScene(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM script_lines WHERE scene_id = ?", id); err != nil {
		return scripterrors.Wrap(scripterrors.ErrCodeStoreWrite, err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM scenes WHERE id = ?", id); err != nil {
		return scripterrors.Wrap(scripterrors.ErrCodeStoreWrite, err)
	}
	return nil
}

// Reader returns a lazily opened read-only connection pool. All search
// engine reads go through it; writes on it fail at the SQLite level.
func (s *MetadataStore) Reader() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, scripterrors.New(scripterrors.ErrCodeInternal, "metadata store is closed", nil)
	}
	if s.reader != nil {
		return s.reader, nil
	}

	reader, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return nil, scripterrors.Wrap(scripterrors.ErrCodeStoreRead, err)
	}
	s.reader = reader
	return reader, nil
}

// Close closes both connection pools.
func (s *MetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var readerErr error
	if s.reader != nil {
		readerErr = s.reader.Close()
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	return readerErr
}

func (s *MetadataStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return scripterrors.Wrap(scripterrors.ErrCodeStoreWrite, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return scripterrors.Wrap(scripterrors.ErrCodeStoreWrite, err)
	}
	return tx.Commit()
}
