// Package store persists playback positions in a local SQLite database so
// a listener can stop mid-page and resume later from the same segment.
package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"github.com/pocketreader/readaloud/internal/speech"
)

// DefaultRetention is how long a saved position survives without being
// touched. Stale positions for pages the listener never returns to are
// pruned on open.
const DefaultRetention = 30 * 24 * time.Hour

// PositionStore is a SQLite-backed speech.PositionStore. Positions are
// keyed by normalized page URL; one row per page.
type PositionStore struct {
	db        *sql.DB
	retention time.Duration
	clock     func() time.Time
}

// Open creates or opens the position database at path. The parent
// directory is created if needed.
func Open(path string) (*PositionStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &PositionStore{db: db, retention: DefaultRetention, clock: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.prune(); err != nil {
		log.Warn("position prune failed", "err", err)
	}
	return s, nil
}

func (s *PositionStore) initSchema() error {
	ddl := `
CREATE TABLE IF NOT EXISTS positions (
    url TEXT PRIMARY KEY,
    idx INTEGER NOT NULL,
    total INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Save records the position for the page, replacing any earlier one.
func (s *PositionStore) Save(pageURL string, index, total int) error {
	_, err := s.db.Exec(
		`INSERT INTO positions(url, idx, total, updated_at) VALUES(?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET idx=excluded.idx, total=excluded.total, updated_at=excluded.updated_at`,
		NormalizeURL(pageURL), index, total, s.clock().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

// Load returns the stored position for the page, or ok=false if none.
func (s *PositionStore) Load(pageURL string) (index, total int, ok bool, err error) {
	row := s.db.QueryRow(
		`SELECT idx, total FROM positions WHERE url = ?`, NormalizeURL(pageURL))
	switch err = row.Scan(&index, &total); err {
	case nil:
		return index, total, true, nil
	case sql.ErrNoRows:
		return 0, 0, false, nil
	default:
		return 0, 0, false, fmt.Errorf("load position: %w", err)
	}
}

// Clear removes the stored position for the page.
func (s *PositionStore) Clear(pageURL string) error {
	if _, err := s.db.Exec(`DELETE FROM positions WHERE url = ?`, NormalizeURL(pageURL)); err != nil {
		return fmt.Errorf("clear position: %w", err)
	}
	return nil
}

// prune drops positions older than the retention window.
func (s *PositionStore) prune() error {
	cutoff := s.clock().Add(-s.retention).UTC().Format(time.RFC3339Nano)
	res, err := s.db.Exec(`DELETE FROM positions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Debug("pruned stale positions", "count", n)
	}
	return nil
}

// Close releases the database.
func (s *PositionStore) Close() error {
	return s.db.Close()
}

// NormalizeURL strips the fragment and query from a page URL so anchors
// and tracking parameters map to the same stored position. Strings that
// do not parse as URLs are returned unchanged.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return raw
	}
	u.Fragment = ""
	u.RawQuery = ""
	return u.String()
}

var _ speech.PositionStore = (*PositionStore)(nil)
