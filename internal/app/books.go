package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookvault/internal/authz"
	"bookvault/internal/uploads"
	"bookvault/pkg/domain"
	"bookvault/pkg/store"
)

// FileUpload is one multipart file as received by the HTTP layer.
type FileUpload struct {
	Field    string
	Filename string
	MimeType string
	Data     []byte
}

// CreateBookInput carries the fields of a new book. Image and PDF are both
// mandatory on creation.
type CreateBookInput struct {
	Title         string
	Author        string
	Description   string
	CategoryID    string
	PublishedDate string
	Featured      bool
	Image         *FileUpload
	PDF           *FileUpload
}

// UpdateBookInput carries the optional fields of a book update. Nil fields
// are left unchanged; a non-nil file replaces the stored attachment.
type UpdateBookInput struct {
	Title         *string
	Author        *string
	Description   *string
	CategoryID    *string
	PublishedDate *string
	Featured      *bool
	IsActive      *bool
	Image         *FileUpload
	PDF           *FileUpload
}

// CreateBook validates both attachments before writing anything, stores
// them, and then writes the record. If the record write fails the stored
// blobs are removed again so no orphan files accumulate.
func (a *App) CreateBook(ctx context.Context, actor domain.User, in CreateBookInput) (domain.Book, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Book{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	author := strings.TrimSpace(in.Author)
	if author == "" {
		return domain.Book{}, fmt.Errorf("%w: author is required", ErrValidation)
	}
	categoryID := strings.TrimSpace(in.CategoryID)
	if categoryID == "" {
		return domain.Book{}, fmt.Errorf("%w: category is required", ErrValidation)
	}
	if _, ok, err := a.store.GetCategory(categoryID); err != nil {
		return domain.Book{}, fmt.Errorf("get category: %w", err)
	} else if !ok {
		return domain.Book{}, fmt.Errorf("%w: unknown category %q", ErrValidation, categoryID)
	}
	if in.Image == nil {
		return domain.Book{}, fmt.Errorf("%w: image file is required", ErrValidation)
	}
	if in.PDF == nil {
		return domain.Book{}, fmt.Errorf("%w: pdf file is required", ErrValidation)
	}

	// Validate both payloads before any blob is written so a bad second
	// file cannot leave the first one orphaned.
	if _, err := a.uploads.Accept(uploads.FieldImage, in.Image.MimeType, int64(len(in.Image.Data)), in.Image.Filename); err != nil {
		return domain.Book{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := a.uploads.Accept(uploads.FieldPDF, in.PDF.MimeType, int64(len(in.PDF.Data)), in.PDF.Filename); err != nil {
		return domain.Book{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	imageKey, err := a.uploads.Store(ctx, uploads.FieldImage, in.Image.Filename, in.Image.MimeType, in.Image.Data)
	if err != nil {
		return domain.Book{}, mapUploadError(err)
	}
	pdfKey, err := a.uploads.Store(ctx, uploads.FieldPDF, in.PDF.Filename, in.PDF.MimeType, in.PDF.Data)
	if err != nil {
		a.discardBlob(ctx, imageKey)
		return domain.Book{}, mapUploadError(err)
	}

	now := time.Now().UTC()
	book := domain.Book{
		ID:            uuid.NewString(),
		Title:         title,
		Author:        author,
		Description:   strings.TrimSpace(in.Description),
		CategoryID:    categoryID,
		PublishedDate: strings.TrimSpace(in.PublishedDate),
		Image:         imageKey,
		PDF:           pdfKey,
		CreatedBy:     actor.ID,
		Featured:      in.Featured,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.store.SaveBook(book); err != nil {
		a.discardBlob(ctx, imageKey)
		a.discardBlob(ctx, pdfKey)
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// GetBook fetches a book by id.
func (a *App) GetBook(id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrNotFound
	}
	return book, nil
}

// ListBooks returns one page of active books, newest first. search matches
// title or author case-insensitively; category filters exactly.
func (a *App) ListBooks(search, category string, page, limit int) ([]domain.Book, int64, error) {
	page, limit = NormalizePage(page, limit)
	filter := store.BookFilter{
		Search:   strings.TrimSpace(search),
		Category: strings.TrimSpace(category),
	}
	books, total, err := a.store.ListBooks(filter, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}
	return books, total, nil
}

// ListFeaturedBooks returns all featured books, newest first, including
// inactive ones.
func (a *App) ListFeaturedBooks() ([]domain.Book, error) {
	books, err := a.store.ListFeaturedBooks()
	if err != nil {
		return nil, fmt.Errorf("list featured books: %w", err)
	}
	return books, nil
}

// UpdateBook applies a partial update on behalf of actor. Attachments are
// replaced write-first, so the old blob survives a failed upload.
func (a *App) UpdateBook(ctx context.Context, actor domain.User, id string, in UpdateBookInput) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrNotFound
	}
	if !authz.CanMutate(actor, book.CreatedBy) {
		return domain.Book{}, ErrForbidden
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return domain.Book{}, fmt.Errorf("%w: title cannot be empty", ErrValidation)
		}
		book.Title = title
	}
	if in.Author != nil {
		author := strings.TrimSpace(*in.Author)
		if author == "" {
			return domain.Book{}, fmt.Errorf("%w: author cannot be empty", ErrValidation)
		}
		book.Author = author
	}
	if in.Description != nil {
		book.Description = strings.TrimSpace(*in.Description)
	}
	if in.CategoryID != nil {
		categoryID := strings.TrimSpace(*in.CategoryID)
		if _, ok, err := a.store.GetCategory(categoryID); err != nil {
			return domain.Book{}, fmt.Errorf("get category: %w", err)
		} else if !ok {
			return domain.Book{}, fmt.Errorf("%w: unknown category %q", ErrValidation, categoryID)
		}
		book.CategoryID = categoryID
	}
	if in.PublishedDate != nil {
		book.PublishedDate = strings.TrimSpace(*in.PublishedDate)
	}
	if in.Featured != nil {
		book.Featured = *in.Featured
	}
	if in.IsActive != nil {
		book.IsActive = *in.IsActive
	}

	if in.Image != nil {
		key, err := a.uploads.Replace(ctx, book.Image, uploads.FieldImage, in.Image.Filename, in.Image.MimeType, in.Image.Data)
		if err != nil && key == "" {
			return domain.Book{}, mapUploadError(err)
		}
		if err != nil {
			slog.Warn("replaced image blob not deleted", "book_id", book.ID, "err", err)
		}
		book.Image = key
	}
	if in.PDF != nil {
		key, err := a.uploads.Replace(ctx, book.PDF, uploads.FieldPDF, in.PDF.Filename, in.PDF.MimeType, in.PDF.Data)
		if err != nil && key == "" {
			return domain.Book{}, mapUploadError(err)
		}
		if err != nil {
			slog.Warn("replaced pdf blob not deleted", "book_id", book.ID, "err", err)
		}
		book.PDF = key
	}

	book.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// DeleteBook removes the record first, then both blobs. A blob that fails
// to delete is logged; the record is already gone.
func (a *App) DeleteBook(ctx context.Context, actor domain.User, id string) error {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if !authz.CanMutate(actor, book.CreatedBy) {
		return ErrForbidden
	}
	if err := a.store.DeleteBook(id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	a.discardBlob(ctx, book.Image)
	a.discardBlob(ctx, book.PDF)
	return nil
}

func (a *App) discardBlob(ctx context.Context, key string) {
	if err := a.uploads.Delete(ctx, key); err != nil {
		slog.Warn("blob cleanup failed", "key", key, "err", err)
	}
}

// mapUploadError folds attachment validation failures into ErrValidation
// while leaving storage failures as internal errors.
func mapUploadError(err error) error {
	for _, sentinel := range []error{
		uploads.ErrUnexpectedField,
		uploads.ErrUnsupportedType,
		uploads.ErrTooLarge,
		uploads.ErrEmptyFile,
		uploads.ErrCorruptPDF,
	} {
		if errors.Is(err, sentinel) {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	return err
}
