package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/maheshrc27/reelsync/internal/models"
)

var (
	ErrMetadataNotFound = errors.New("metadata not found")
	ErrMetadataCorrupt  = errors.New("metadata is corrupt")
)

const (
	flatMetaSuffix = "_meta.json"
	nestedMetaName = "meta.json"
)

type MetadataRepository interface {
	Path(profileDir, baseName string) string
	Load(path string) (*models.PostMetadata, error)
	Save(path string, meta *models.PostMetadata) error
	List(profileDir string) ([]string, error)
}

type metadataRepository struct {
	perPostSubdirs bool
}

func NewMetadataRepository(perPostSubdirs bool) MetadataRepository {
	return &metadataRepository{perPostSubdirs: perPostSubdirs}
}

// Path resolves where the metadata of baseName lives. The nested layout is only
// used when the post directory already exists.
func (r *metadataRepository) Path(profileDir, baseName string) string {
	if r.perPostSubdirs {
		postDir := filepath.Join(profileDir, baseName)
		if info, err := os.Stat(postDir); err == nil && info.IsDir() {
			return filepath.Join(postDir, nestedMetaName)
		}
	}
	return filepath.Join(profileDir, baseName+flatMetaSuffix)
}

func (r *metadataRepository) Load(path string) (*models.PostMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrMetadataNotFound
		}
		return nil, fmt.Errorf("failed to read metadata %s: %w", path, err)
	}

	var meta models.PostMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMetadataCorrupt, path, err)
	}
	if meta.Migrate() {
		slog.Debug("migrated metadata record", "path", path, "schema_version", meta.SchemaVersion)
	}
	return &meta, nil
}

// Save writes meta to a temp file next to path and renames it into place.
func (r *metadataRepository) Save(path string, meta *models.PostMetadata) error {
	if meta == nil {
		return errors.New("metadata is nil")
	}
	if meta.SchemaVersion == 0 {
		meta.SchemaVersion = models.MetadataSchemaVersion
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".meta-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp metadata file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync metadata: %w", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set metadata permissions: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close metadata: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace metadata %s: %w", path, err)
	}
	return nil
}

// List returns every metadata file below profileDir.
func (r *metadataRepository) List(profileDir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(profileDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == profileDir {
				return filepath.SkipAll
			}
			slog.Warn("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), nestedMetaName) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", profileDir, err)
	}
	return paths, nil
}
