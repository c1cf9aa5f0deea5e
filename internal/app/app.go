// Package app implements the resource lifecycle service: registration and
// login, profile and user administration, category and book CRUD, and the
// coupling between book records and their stored attachments.
package app

import (
	"bookvault/internal/uploads"
	"bookvault/pkg/store"
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

// App holds the stores the handlers operate through.
type App struct {
	store    store.Store
	sessions store.SessionStore
	uploads  *uploads.Manager
}

// New wires the service to its persistence and attachment backends.
func New(st store.Store, sessions store.SessionStore, up *uploads.Manager) *App {
	return &App{store: st, sessions: sessions, uploads: up}
}

// Uploads exposes the attachment manager for handlers that stream blobs.
func (a *App) Uploads() *uploads.Manager {
	return a.uploads
}

// NormalizePage clamps page/limit to 1-indexed positive values with the
// default page size.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}
	return page, limit
}

// TotalPages returns ceil(total/limit) for a positive limit.
func TotalPages(total int64, limit int) int {
	if limit < 1 {
		limit = defaultLimit
	}
	pages := int((total + int64(limit) - 1) / int64(limit))
	if pages < 0 {
		pages = 0
	}
	return pages
}
