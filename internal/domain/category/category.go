package category

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/example/marketplace/internal/identity"
	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("category not found")
	ErrInvalidName = errors.New("name is required")
)

// Category is a node in the category tree. RequiredProperties are inherited
// additively from the parent at creation time; a child's set is a superset
// of its parent's as of that moment, and is not re-validated afterwards.
type Category struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	ParentID           string    `json:"parent_id,omitempty"`
	SubcategoryIDs     []string  `json:"subcategory_ids"`
	RequiredProperties []string  `json:"required_properties"`
	CreatedAt          time.Time `json:"created_at"`
}

// Store is the category collaborator surface the service needs
type Store interface {
	Save(ctx context.Context, c *Category) error
	FindByID(ctx context.Context, id string) (*Category, error)
	FindByIDs(ctx context.Context, ids []string) ([]Category, error)
}

// Service handles category registration and closure traversal
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

type RegisterRequest struct {
	Name               string   `json:"name"`
	ParentID           string   `json:"parent_id,omitempty"`
	RequiredProperties []string `json:"required_properties"`
}

// Register creates a category, inheriting the parent's required properties
// and linking the parent's subcategory set back to the new node.
func (s *Service) Register(ctx context.Context, principal identity.Principal, req RegisterRequest) (*Category, error) {
	if !principal.IsAdmin() {
		return nil, identity.ErrAccessDenied
	}
	if req.Name == "" {
		return nil, ErrInvalidName
	}

	props := uniqueStrings(req.RequiredProperties)

	var parent *Category
	if req.ParentID != "" {
		var err error
		parent, err = s.store.FindByID(ctx, req.ParentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load parent category: %w", err)
		}
		props = uniqueStrings(append(append([]string{}, parent.RequiredProperties...), props...))
	}

	c := &Category{
		ID:                 uuid.New().String(),
		Name:               req.Name,
		ParentID:           req.ParentID,
		SubcategoryIDs:     []string{},
		RequiredProperties: props,
		CreatedAt:          time.Now(),
	}

	if err := s.store.Save(ctx, c); err != nil {
		return nil, err
	}

	if parent != nil {
		parent.SubcategoryIDs = append(parent.SubcategoryIDs, c.ID)
		if err := s.store.Save(ctx, parent); err != nil {
			return nil, fmt.Errorf("failed to link parent category: %w", err)
		}
	}

	return c, nil
}

func (s *Service) FindByID(ctx context.Context, id string) (*Category, error) {
	return s.store.FindByID(ctx, id)
}

func (s *Service) FindByIDs(ctx context.Context, ids []string) ([]Category, error) {
	return s.store.FindByIDs(ctx, ids)
}

// BuildClosure resolves the flat id set covered by the target categories:
// the targets themselves, their full ancestor chains, and their complete
// descendant subtrees. A visited set terminates the walk even if the
// stored graph is malformed or cyclic.
func (s *Service) BuildClosure(ctx context.Context, ids []string) ([]string, error) {
	targets, err := s.store.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	visited := make(map[string]struct{})

	var descend func(c *Category) error
	descend = func(c *Category) error {
		if _, seen := visited[c.ID]; seen {
			return nil
		}
		visited[c.ID] = struct{}{}
		for _, subID := range c.SubcategoryIDs {
			sub, err := s.store.FindByID(ctx, subID)
			if err != nil {
				return err
			}
			if err := descend(sub); err != nil {
				return err
			}
		}
		return nil
	}

	// All subtree descents run before any ancestor marking: a target that
	// is an ancestor of another target must still expand its full subtree,
	// which a premature parent-chain mark would cut short.
	for i := range targets {
		if err := descend(&targets[i]); err != nil {
			return nil, err
		}
	}

	for i := range targets {
		parentID := targets[i].ParentID
		for parentID != "" {
			if _, seen := visited[parentID]; seen {
				break
			}
			parent, err := s.store.FindByID(ctx, parentID)
			if err != nil {
				return nil, err
			}
			visited[parent.ID] = struct{}{}
			parentID = parent.ParentID
		}
	}

	closure := make([]string, 0, len(visited))
	for id := range visited {
		closure = append(closure, id)
	}
	sort.Strings(closure)
	return closure, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
