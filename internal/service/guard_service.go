package service

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/maheshrc27/reelsync/internal/models"
	"github.com/maheshrc27/reelsync/internal/repository"
)

type GuardService interface {
	// Check decides whether the post stored at metaPath is skipped, resumed or processed.
	Check(profileDir, metaPath, title, description string) (*models.GuardResult, error)
}

type guardService struct {
	repo repository.MetadataRepository
}

func NewGuardService(repo repository.MetadataRepository) GuardService {
	return &guardService{repo: repo}
}

func (g *guardService) Check(profileDir, metaPath, title, description string) (*models.GuardResult, error) {
	existing, err := g.repo.Load(metaPath)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrMetadataNotFound):
		existing = nil
	case errors.Is(err, repository.ErrMetadataCorrupt):
		slog.Warn("corrupt metadata, treating post as unseen", "path", metaPath, "error", err)
		existing = nil
	default:
		return nil, err
	}

	if existing != nil && existing.Uploaded {
		return &models.GuardResult{
			Decision: models.DecisionSkip,
			Reason:   "already uploaded",
			Existing: existing,
		}, nil
	}

	dup, err := g.findDuplicate(profileDir, metaPath, title, description)
	if err != nil {
		return nil, err
	}
	if dup != "" {
		return &models.GuardResult{
			Decision: models.DecisionSkip,
			Reason:   fmt.Sprintf("duplicate content of %s", filepath.Base(dup)),
			Existing: existing,
		}, nil
	}

	if existing != nil {
		return &models.GuardResult{
			Decision: models.DecisionResume,
			Reason:   fmt.Sprintf("%d of its files already uploaded", len(existing.Uploads)),
			Existing: existing,
		}, nil
	}
	return &models.GuardResult{Decision: models.DecisionProcess}, nil
}

// findDuplicate returns the path of another record in the profile whose title or
// description equals the candidate's. Matching is exact, so two posts with empty
// captions count as duplicates.
func (g *guardService) findDuplicate(profileDir, metaPath, title, description string) (string, error) {
	paths, err := g.repo.List(profileDir)
	if err != nil {
		return "", err
	}

	self := filepath.Clean(metaPath)
	for _, path := range paths {
		if filepath.Clean(path) == self {
			continue
		}
		other, err := g.repo.Load(path)
		if err != nil {
			slog.Warn("ignoring unreadable metadata", "path", path, "error", err)
			continue
		}
		if other.Title == title || other.Description == description {
			return path, nil
		}
	}
	return "", nil
}
