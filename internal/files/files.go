// Package files is the attachment collaborator. The core only depends
// on Store: raw bytes in, stable attachment ids out.
package files

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/teris-io/shortid"

	"github.com/avolkov/converse/internal/database"
)

type Store interface {
	Create(uploads [][]byte) ([]string, error)
}

// DiskStore writes uploads under a base directory and records a row per
// file so messages can reference them by id.
type DiskStore struct {
	log zerolog.Logger
	db  database.Repository
	dir string
	sid *shortid.Shortid
}

func NewDiskStore(logger zerolog.Logger, db database.Repository, dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create file directory: %w", err)
	}

	sid, err := shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		return nil, fmt.Errorf("init shortid: %w", err)
	}

	return &DiskStore{
		log: logger,
		db:  db,
		dir: dir,
		sid: sid,
	}, nil
}

func (s *DiskStore) Create(uploads [][]byte) ([]string, error) {
	ids := make([]string, 0, len(uploads))
	for _, data := range uploads {
		id, err := s.sid.Generate()
		if err != nil {
			return nil, fmt.Errorf("generate file id: %w", err)
		}

		path := filepath.Join(s.dir, id)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write file %q: %w", id, err)
		}

		if _, err := s.db.CreateFile(id, path); err != nil {
			os.Remove(path)
			return nil, fmt.Errorf("record file %q: %w", id, err)
		}

		s.log.Debug().Str("file_id", id).Int("bytes", len(data)).Msg("stored attachment")
		ids = append(ids, id)
	}

	return ids, nil
}
