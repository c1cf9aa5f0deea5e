package store

import "bookvault/pkg/domain"

// BookFilter narrows the general book listing. Search matches title or
// author case-insensitively; Category is an exact-match category ID.
type BookFilter struct {
	Search   string
	Category string
}

// Store defines persistence operations for users, categories, and books.
// List operations take a 1-indexed page and a limit and return the total
// match count alongside the page of items.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	ListUsers(search string, page, limit int) ([]domain.User, int64, error)
	UserCount() (int, error)

	// categories
	SaveCategory(domain.Category) error
	GetCategory(id string) (domain.Category, bool, error)
	ListCategories(search string, page, limit int) ([]domain.Category, int64, error)
	DeleteCategory(id string) error

	// books
	SaveBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	ListBooks(filter BookFilter, page, limit int) ([]domain.Book, int64, error)
	ListFeaturedBooks() ([]domain.Book, error)
	DeleteBook(id string) error
}

// SessionStore issues and validates bearer tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
