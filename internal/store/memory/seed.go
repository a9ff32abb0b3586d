package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"trackbus/internal/log"
	"trackbus/internal/store"
)

// Seed is the on-disk layout of a seed file:
//
//	[[partners]]
//	id = "p1"
//	name = "Alice"
//	moneyInvested = 600
//	investmentDate = 2024-01-15
type Seed struct {
	Partners []map[string]any `toml:"partners"`
	Expenses []map[string]any `toml:"expenses"`
	Sales    []map[string]any `toml:"sales"`
}

// ReadSeed parses a TOML seed file.
func ReadSeed(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed %s: %w", path, err)
	}
	var seed Seed
	if err := toml.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return seed, nil
}

// AppendPartner adds a partner to the seed file and returns its new id.
// The file is created when it does not exist yet.
func AppendPartner(path string, fields map[string]any) (string, error) {
	var seed Seed
	if _, err := os.Stat(path); err == nil {
		if seed, err = ReadSeed(path); err != nil {
			return "", err
		}
	}

	id := uuid.NewString()
	row := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		row[k] = v
	}
	row["id"] = id
	seed.Partners = append(seed.Partners, row)

	raw, err := toml.Marshal(seed)
	if err != nil {
		return "", fmt.Errorf("encode seed: %w", err)
	}
	// Write then rename so a watcher never sees a half-written file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return "", fmt.Errorf("write seed %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("write seed %s: %w", path, err)
	}
	return id, nil
}

// Collection returns the seeded records for c.
func (sd Seed) Collection(c store.Collection) []store.Record {
	var rows []map[string]any
	switch c {
	case store.Partners:
		rows = sd.Partners
	case store.Expenses:
		rows = sd.Expenses
	case store.Sales:
		rows = sd.Sales
	}
	out := make([]store.Record, 0, len(rows))
	for _, row := range rows {
		rec := store.Record{Fields: make(map[string]any, len(row))}
		for k, v := range row {
			if k == "id" {
				rec.ID = fmt.Sprint(v)
				continue
			}
			rec.Fields[k] = v
		}
		out = append(out, rec)
	}
	return out
}

// NewFromFile builds a store holding every collection found in the seed file.
func NewFromFile(path string) (*Store, error) {
	seed, err := ReadSeed(path)
	if err != nil {
		return nil, err
	}
	s := New()
	for _, c := range store.Collections() {
		s.Replace(c, seed.Collection(c))
	}
	return s, nil
}

// ReloadPartners re-reads the seed file and replaces the partners collection.
// A parse failure puts partners into the failed state.
func (s *Store) ReloadPartners(path string) error {
	seed, err := ReadSeed(path)
	if err != nil {
		s.Fail(store.Partners, err)
		return err
	}
	s.Replace(store.Partners, seed.Collection(store.Partners))
	return nil
}

// Watch reloads partners whenever the seed file is written or created,
// until ctx is done. Expenses and sales recorded at
// runtime are left alone.
func (s *Store) Watch(ctx context.Context, path string, logger *log.Logger) error {
	logger = log.OrDiscard(logger, log.ComponentStore)

	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Editors often replace the file, so watch the directory.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	logger.Info("Watching seed file", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := s.ReloadPartners(path); err != nil {
				logger.Warn("Seed reload failed", log.FieldOperation, log.OpReload, log.FieldError, err)
				continue
			}
			logger.Info("Seed reloaded", log.FieldOperation, log.OpReload, log.FieldCollection, store.Partners)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Seed watcher error", log.FieldError, err)
		}
	}
}
