package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookvault/internal/authz"
	"bookvault/pkg/domain"
)

// CategoryInput carries the writable category fields.
type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateCategory adds a category. Any authenticated user may create one.
func (a *App) CreateCategory(in CategoryInput) (domain.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Category{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	now := time.Now().UTC()
	category := domain.Category{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.SaveCategory(category); err != nil {
		return domain.Category{}, fmt.Errorf("save category: %w", err)
	}
	return category, nil
}

// GetCategory fetches a category by id.
func (a *App) GetCategory(id string) (domain.Category, error) {
	category, ok, err := a.store.GetCategory(id)
	if err != nil {
		return domain.Category{}, fmt.Errorf("get category: %w", err)
	}
	if !ok {
		return domain.Category{}, ErrNotFound
	}
	return category, nil
}

// ListCategories returns one page of categories matching the name search.
func (a *App) ListCategories(search string, page, limit int) ([]domain.Category, int64, error) {
	page, limit = NormalizePage(page, limit)
	categories, total, err := a.store.ListCategories(strings.TrimSpace(search), page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list categories: %w", err)
	}
	return categories, total, nil
}

// UpdateCategory applies a partial update. Categories have no owner, so
// only admins may modify them.
func (a *App) UpdateCategory(actor domain.User, id string, in CategoryInput) (domain.Category, error) {
	if !authz.CanMutate(actor, "") {
		return domain.Category{}, ErrForbidden
	}
	category, ok, err := a.store.GetCategory(id)
	if err != nil {
		return domain.Category{}, fmt.Errorf("get category: %w", err)
	}
	if !ok {
		return domain.Category{}, ErrNotFound
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		category.Name = name
	}
	if desc := strings.TrimSpace(in.Description); desc != "" {
		category.Description = desc
	}
	category.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveCategory(category); err != nil {
		return domain.Category{}, fmt.Errorf("save category: %w", err)
	}
	return category, nil
}

// DeleteCategory removes a category. Admin only.
func (a *App) DeleteCategory(actor domain.User, id string) error {
	if !authz.CanMutate(actor, "") {
		return ErrForbidden
	}
	if _, ok, err := a.store.GetCategory(id); err != nil {
		return fmt.Errorf("get category: %w", err)
	} else if !ok {
		return ErrNotFound
	}
	if err := a.store.DeleteCategory(id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}
