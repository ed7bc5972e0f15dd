// Package sqlitestore provides a store.Store backed by a SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/model"
	"github.com/glorpus-work/fluffpkg/pkg/store"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultFileName is the name of the database inside the state directory.
const DefaultFileName = "fluffpkg.db"

// Store is the SQLite engine.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS candidates (
		package_name TEXT PRIMARY KEY,
		module TEXT NOT NULL,
		name TEXT NOT NULL,
		categories TEXT NOT NULL DEFAULT '[]',
		source_kind TEXT NOT NULL,
		source_url TEXT NOT NULL,
		download_url TEXT NOT NULL DEFAULT '',
		module_data TEXT NOT NULL DEFAULT '{}',
		imported_categories TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_candidates_source ON candidates(source_kind, source_url);

	CREATE TABLE IF NOT EXISTS installed (
		package_name TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		version TEXT NOT NULL,
		launcher INTEGER NOT NULL DEFAULT 0,
		path INTEGER NOT NULL DEFAULT 0,
		module TEXT NOT NULL,
		source_kind TEXT NOT NULL,
		source_url TEXT NOT NULL,
		executable_path TEXT NOT NULL DEFAULT '',
		version_locked INTEGER NOT NULL DEFAULT 0,
		installed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sources (
		kind TEXT NOT NULL,
		url TEXT NOT NULL,
		PRIMARY KEY (kind, url)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

const candidateColumns = `package_name, module, name, categories, source_kind, source_url, download_url, module_data, imported_categories`

func scanCandidate(row rowScanner) (*model.Candidate, error) {
	var (
		c                   model.Candidate
		categories, modData string
		imported            sql.NullString
	)
	if err := row.Scan(&c.PackageName, &c.Module, &c.Name, &categories,
		&c.Source.Kind, &c.Source.URL, &c.DownloadURL, &modData, &imported); err != nil {
		return nil, err
	}
	if imported.Valid {
		c.ImportedCategories = []string{}
		if err := json.Unmarshal([]byte(imported.String), &c.ImportedCategories); err != nil {
			return nil, fmt.Errorf("failed to decode imported categories of %s: %w", c.PackageName, err)
		}
	}
	if err := json.Unmarshal([]byte(categories), &c.Categories); err != nil {
		return nil, fmt.Errorf("failed to decode categories of %s: %w", c.PackageName, err)
	}
	if err := json.Unmarshal([]byte(modData), &c.ModuleData); err != nil {
		return nil, fmt.Errorf("failed to decode module data of %s: %w", c.PackageName, err)
	}
	if len(c.Categories) == 0 {
		c.Categories = nil
	}
	if len(c.ModuleData) == 0 {
		c.ModuleData = nil
	}
	return &c, nil
}

type encodedCandidate struct {
	categories string
	moduleData string
	imported   sql.NullString
}

func encodeCandidate(c *model.Candidate) (encodedCandidate, error) {
	var enc encodedCandidate
	cats := c.Categories
	if cats == nil {
		cats = []string{}
	}
	catJSON, err := json.Marshal(cats)
	if err != nil {
		return enc, err
	}
	data := c.ModuleData
	if data == nil {
		data = map[string]string{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return enc, err
	}
	enc.categories, enc.moduleData = string(catJSON), string(dataJSON)

	if c.ImportedCategories != nil {
		importedJSON, err := json.Marshal(c.ImportedCategories)
		if err != nil {
			return enc, err
		}
		enc.imported = sql.NullString{String: string(importedJSON), Valid: true}
	}
	return enc, nil
}

func (s *Store) candidateExists(ctx context.Context, packageName string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM candidates WHERE package_name = ?`, packageName).Scan(&n)
	return n > 0, err
}

func (s *Store) installedExists(ctx context.Context, packageName string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM installed WHERE package_name = ?`, packageName).Scan(&n)
	return n > 0, err
}

// AddCandidate inserts a candidate.
func (s *Store) AddCandidate(ctx context.Context, c *model.Candidate, skipIfExists bool) error {
	exists, err := s.candidateExists(ctx, c.PackageName)
	if err != nil {
		return err
	}
	if exists {
		if skipIfExists {
			return nil
		}
		return errors.ErrAlreadySourcedWithName(c.PackageName)
	}

	enc, err := encodeCandidate(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO candidates (`+candidateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.PackageName, c.Module, c.Name, enc.categories, string(c.Source.Kind), c.Source.URL, c.DownloadURL,
		enc.moduleData, enc.imported)
	return err
}

// UpdateCandidate replaces the record of an existing candidate.
func (s *Store) UpdateCandidate(ctx context.Context, c *model.Candidate) error {
	enc, err := encodeCandidate(c)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE candidates SET module = ?, name = ?, categories = ?, source_kind = ?, source_url = ?,
			download_url = ?, module_data = ?, imported_categories = ?
		WHERE package_name = ?`,
		c.Module, c.Name, enc.categories, string(c.Source.Kind), c.Source.URL, c.DownloadURL,
		enc.moduleData, enc.imported, c.PackageName)
	if err != nil {
		return err
	}
	return requireRow(res, errors.ErrNotSourcedWithName(c.PackageName))
}

// Candidate returns a candidate by package name.
func (s *Store) Candidate(ctx context.Context, packageName string) (*model.Candidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE package_name = ?`, packageName)
	c, err := scanCandidate(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrNotSourcedWithName(packageName)
	}
	return c, err
}

// Candidates returns every candidate in insertion order.
func (s *Store) Candidates(ctx context.Context) ([]*model.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+candidateColumns+` FROM candidates ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCategories replaces the categories of a candidate.
func (s *Store) UpdateCategories(ctx context.Context, packageName string, categories []string) error {
	if categories == nil {
		categories = []string{}
	}
	data, err := json.Marshal(categories)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE candidates SET categories = ? WHERE package_name = ?`, string(data), packageName)
	if err != nil {
		return err
	}
	return requireRow(res, errors.ErrNotSourcedWithName(packageName))
}

// SetModuleData sets one module data key of a candidate. An empty value
// deletes the key.
func (s *Store) SetModuleData(ctx context.Context, packageName, key, value string) error {
	c, err := s.Candidate(ctx, packageName)
	if err != nil {
		return err
	}
	if value == "" {
		delete(c.ModuleData, key)
	} else {
		if c.ModuleData == nil {
			c.ModuleData = make(map[string]string)
		}
		c.ModuleData[key] = value
	}
	return s.UpdateCandidate(ctx, c)
}

// RemoveCandidate deletes a candidate that is not installed.
func (s *Store) RemoveCandidate(ctx context.Context, packageName string) error {
	exists, err := s.candidateExists(ctx, packageName)
	if err != nil {
		return err
	}
	if !exists {
		return errors.ErrNotSourcedWithName(packageName)
	}
	installed, err := s.installedExists(ctx, packageName)
	if err != nil {
		return err
	}
	if installed {
		return errors.ErrStillInstalledWithName(packageName)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM candidates WHERE package_name = ?`, packageName)
	return err
}

const installedColumns = `package_name, name, version, launcher, path, module, source_kind, source_url, executable_path, version_locked, installed_at`

func scanInstallation(row rowScanner) (*model.Installation, error) {
	var (
		i           model.Installation
		installedAt string
	)
	if err := row.Scan(&i.PackageName, &i.Name, &i.Version, &i.Launcher, &i.Path, &i.Module,
		&i.Source.Kind, &i.Source.URL, &i.ExecutablePath, &i.VersionLocked, &installedAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, installedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode install time of %s: %w", i.PackageName, err)
	}
	i.InstalledAt = t
	return &i, nil
}

// MarkInstalled records an installation.
func (s *Store) MarkInstalled(ctx context.Context, inst *model.Installation) error {
	exists, err := s.installedExists(ctx, inst.PackageName)
	if err != nil {
		return err
	}
	if exists {
		return errors.ErrAlreadyInstalledWithName(inst.PackageName)
	}

	installedAt := inst.InstalledAt
	if installedAt.IsZero() {
		installedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO installed (`+installedColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.PackageName, inst.Name, inst.Version, inst.Launcher, inst.Path, inst.Module,
		string(inst.Source.Kind), inst.Source.URL, inst.ExecutablePath, inst.VersionLocked,
		installedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// Installation returns an installation by package name.
func (s *Store) Installation(ctx context.Context, packageName string) (*model.Installation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+installedColumns+` FROM installed WHERE package_name = ?`, packageName)
	i, err := scanInstallation(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrNotInstalledWithName(packageName)
	}
	return i, err
}

// Installations returns every installation in insertion order.
func (s *Store) Installations(ctx context.Context) ([]*model.Installation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+installedColumns+` FROM installed ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Installation
	for rows.Next() {
		i, err := scanInstallation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// MarkAttribute sets the launcher or path attribute of an installation.
func (s *Store) MarkAttribute(ctx context.Context, packageName, attribute string, value bool) error {
	var column string
	switch attribute {
	case model.AttributeLauncher:
		column = "launcher"
	case model.AttributePath:
		column = "path"
	default:
		return fmt.Errorf("%w: %s", errors.ErrAttributeNotAllowed, attribute)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE installed SET `+column+` = ? WHERE package_name = ?`, value, packageName)
	if err != nil {
		return err
	}
	return requireRow(res, errors.ErrNotInstalledWithName(packageName))
}

// UnmarkInstalled deletes an installation record.
func (s *Store) UnmarkInstalled(ctx context.Context, packageName string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM installed WHERE package_name = ?`, packageName)
	if err != nil {
		return err
	}
	return requireRow(res, errors.ErrNotInstalledWithName(packageName))
}

// AddSource records a source.
func (s *Store) AddSource(ctx context.Context, src model.Source) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources WHERE kind = ? AND url = ?`,
		string(src.Kind), src.URL).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", errors.ErrSourceAlreadyExists, src)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sources (kind, url) VALUES (?, ?)`, string(src.Kind), src.URL)
	return err
}

// RemoveSource forgets a source. Its candidates are left alone.
func (s *Store) RemoveSource(ctx context.Context, src model.Source) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE kind = ? AND url = ?`, string(src.Kind), src.URL)
	if err != nil {
		return err
	}
	return requireRow(res, errors.ErrSourceNotFoundWithLocation(src.String()))
}

// Sources returns every recorded source.
func (s *Store) Sources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, url FROM sources ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Source
	for rows.Next() {
		var src model.Source
		if err := rows.Scan(&src.Kind, &src.URL); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
