package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wms-admin/gateway/internal/models"
)

// draftVersion is bumped whenever the draft layout changes; drafts saved
// under an older version are discarded on load rather than migrated.
const draftVersion = 1

// Draft is a snapshot of an in-progress import that survives process
// restarts. Only hand-editable state is kept: parsed rows and where they
// came from. Validation results are recomputed on restore.
type Draft struct {
	Version   int                `msgpack:"version"`
	EntityKey string             `msgpack:"entity_key"`
	Source    models.RowSource   `msgpack:"source"`
	FileName  string             `msgpack:"file_name,omitempty"`
	Rows      []models.ParsedRow `msgpack:"rows"`
	SavedAt   time.Time          `msgpack:"saved_at"`
}

// DraftStore persists one draft per entity type under a directory, one
// msgpack file each.
type DraftStore struct {
	dir string
}

func NewDraftStore(dir string) (*DraftStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create draft directory: %w", err)
	}
	return &DraftStore{dir: dir}, nil
}

func (s *DraftStore) path(entityKey string) string {
	return filepath.Join(s.dir, entityKey+".draft")
}

// Save writes the draft for its entity, replacing any previous one.
func (s *DraftStore) Save(d *Draft) error {
	d.Version = draftVersion
	d.SavedAt = time.Now()

	data, err := msgpack.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	if err := os.WriteFile(s.path(d.EntityKey), data, 0o644); err != nil {
		return fmt.Errorf("failed to write draft: %w", err)
	}
	return nil
}

// Load returns the stored draft for the entity, or (nil, nil) when no
// usable draft exists. A draft written under a different version or one
// that fails to decode counts as absent and is removed.
func (s *DraftStore) Load(entityKey string) (*Draft, error) {
	data, err := os.ReadFile(s.path(entityKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read draft: %w", err)
	}

	var d Draft
	if err := msgpack.Unmarshal(data, &d); err != nil {
		s.Delete(entityKey)
		return nil, nil
	}
	if d.Version != draftVersion || len(d.Rows) == 0 {
		s.Delete(entityKey)
		return nil, nil
	}
	return &d, nil
}

// Delete removes the draft for the entity if present.
func (s *DraftStore) Delete(entityKey string) {
	os.Remove(s.path(entityKey))
}
