package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"FinAgent/internal/domain/models"
	domrepo "FinAgent/internal/domain/repository"
)

// MetadataFile is the agent record inside its directory.
const MetadataFile = "metadata.json"

// FileAgentStore keeps one directory per agent under root:
// <root>/<agent_id>/metadata.json plus the model and scaler artifacts.
type FileAgentStore struct {
	root string
}

func NewFileAgentStore(root string) *FileAgentStore {
	return &FileAgentStore{root: root}
}

func (s *FileAgentStore) ArtifactDir(id string) string {
	return filepath.Join(s.root, id)
}

// Save writes the record through a temp file and a rename, so readers never
// observe a half written metadata.json.
func (s *FileAgentStore) Save(_ context.Context, a *models.Agent) error {
	if err := checkID(a.AgentID); err != nil {
		return err
	}
	dir := s.ArtifactDir(a.AgentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create agent dir: %w", err)
	}
	b, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encode agent: %w", err)
	}

	tmp, err := os.CreateTemp(dir, MetadataFile+".*")
	if err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save agent: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save agent: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, MetadataFile)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

func (s *FileAgentStore) Get(_ context.Context, id string) (*models.Agent, error) {
	if err := checkID(id); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrAgentNotFound, id)
	}
	b, err := os.ReadFile(filepath.Join(s.ArtifactDir(id), MetadataFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrAgentNotFound, id)
		}
		return nil, fmt.Errorf("read agent %s: %w", id, err)
	}
	var a models.Agent
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("decode agent %s: %w", id, err)
	}
	return &a, nil
}

// List returns every agent ordered by creation time. Directories without a
// readable record are skipped.
func (s *FileAgentStore) List(ctx context.Context) ([]*models.Agent, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.Agent{}, nil
		}
		return nil, fmt.Errorf("list agents: %w", err)
	}

	out := make([]*models.Agent, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		a, err := s.Get(ctx, e.Name())
		if err != nil {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].AgentID < out[j].AgentID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// checkID rejects ids that would escape the store root.
func checkID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: agent id %q", models.ErrInvalidRequest, id)
	}
	return nil
}

var _ domrepo.AgentStore = (*FileAgentStore)(nil)
