// Package store reads and writes definition records from the folder-per-kind
// layout on disk: commands/ for slash commands, context-menu/ for both
// context-menu kinds.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/herald/pkg/definition"
	"github.com/odvcencio/herald/pkg/errors"
	"github.com/odvcencio/herald/pkg/logging"
)

// Store manages the definition folder tree rooted at a single directory.
type Store struct {
	root string
	log  *logging.Logger
}

// New creates a store rooted at dir.
func New(dir string, log *logging.Logger) *Store {
	if log == nil {
		log = logging.NewDiscard()
	}
	return &Store{root: dir, log: log}
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

// FamilyDir returns the absolute folder for a definition family.
func (s *Store) FamilyDir(family definition.Family) string {
	return filepath.Join(s.root, family.Dir())
}

// List returns the locators of every record in a family, sorted by name.
// A missing folder yields an empty result, not an error.
func (s *Store) List(family definition.Family) ([]string, error) {
	dir := s.FamilyDir(family)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Warn(logging.CategoryStore, "missing_folder", "definition folder does not exist", map[string]any{
				"dir": dir,
			})
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeStoreList, "listing definition folder").
			WithContext("dir", dir)
	}

	var locators []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		locators = append(locators, filepath.Join(family.Dir(), entry.Name()))
	}
	sort.Strings(locators)
	return locators, nil
}

// Read parses one record. A malformed record is a recoverable error carrying
// ErrCodeStoreCorrupt so callers can skip it without aborting the batch.
func (s *Store) Read(locator string) (*definition.Definition, error) {
	path := filepath.Join(s.root, locator)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStoreRead, "reading definition record").
			WithContext("locator", locator)
	}

	var def definition.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		s.log.Warn(logging.CategoryStore, "malformed_record", "skipping unparsable record", map[string]any{
			"locator": locator,
			"error":   err.Error(),
		})
		return nil, errors.Wrap(err, errors.ErrCodeStoreCorrupt, "malformed definition record").
			WithContext("locator", locator)
	}

	def.Locator = locator
	return &def, nil
}

// Write serializes a record back to its locator. The write goes through a
// temp file and rename so a crash mid-write leaves the old record intact.
func (s *Store) Write(locator string, def *definition.Definition) error {
	path := filepath.Join(s.root, locator)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreWrite, "creating definition folder").
			WithContext("locator", locator)
	}

	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreWrite, "serializing definition record").
			WithContext("locator", locator)
	}
	data = append(data, '\n')

	tmpPath := path + ".herald.tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreWrite, "writing definition record").
			WithContext("locator", locator)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		// Windows cannot replace an existing file with os.Rename. Fall back
		// to a non-atomic write and clean up the temporary file.
		if werr := os.WriteFile(path, data, 0o644); werr != nil {
			_ = os.Remove(tmpPath)
			return errors.Wrap(werr, errors.ErrCodeStoreWrite, "writing definition record").
				WithContext("locator", locator)
		}
		_ = os.Remove(tmpPath)
	}
	return nil
}

// SetRegistryID persists a registry-assigned id into the record at locator.
// The record is re-read first so the write-back cannot clobber fields edited
// since the definition was loaded.
func (s *Store) SetRegistryID(locator, id string) error {
	def, err := s.Read(locator)
	if err != nil {
		return err
	}
	def.RegistryID = id
	return s.Write(locator, def)
}

// ClearRegistryIDs sweeps every record of a family once and clears the id
// field on any record whose id is in the given set. Returns the locators it
// cleared.
func (s *Store) ClearRegistryIDs(family definition.Family, ids map[string]struct{}) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	locators, err := s.List(family)
	if err != nil {
		return nil, err
	}

	var cleared []string
	for _, locator := range locators {
		def, err := s.Read(locator)
		if err != nil {
			// A malformed sibling must not abort the sweep.
			continue
		}
		if def.RegistryID == "" {
			continue
		}
		if _, ok := ids[def.RegistryID]; !ok {
			continue
		}
		def.RegistryID = ""
		if err := s.Write(locator, def); err != nil {
			return cleared, err
		}
		cleared = append(cleared, locator)
	}
	return cleared, nil
}

// ReadAll loads every parsable record of a family. Malformed records are
// skipped and their locators returned separately.
func (s *Store) ReadAll(family definition.Family) ([]*definition.Definition, []string, error) {
	locators, err := s.List(family)
	if err != nil {
		return nil, nil, err
	}

	var defs []*definition.Definition
	var skipped []string
	for _, locator := range locators {
		def, err := s.Read(locator)
		if err != nil {
			skipped = append(skipped, locator)
			continue
		}
		defs = append(defs, def)
	}
	return defs, skipped, nil
}
