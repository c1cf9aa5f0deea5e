package server

import (
	"context"
	"strings"
	"time"

	"bookvault/pkg/domain"
)

const presignExpiry = 15 * time.Minute

// categoryRef and creatorRef are the embedded summaries on book payloads.
type categoryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type creatorRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// bookView is the wire shape of a book: storage keys plus resolvable URLs,
// with category and creator populated.
type bookView struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Author        string       `json:"author"`
	Description   string       `json:"description"`
	Category      *categoryRef `json:"category"`
	PublishedDate string       `json:"publishedDate"`
	Image         string       `json:"image"`
	ImageURL      string       `json:"imageUrl"`
	PDF           string       `json:"pdf"`
	PDFURL        string       `json:"pdfUrl"`
	CreatedBy     *creatorRef  `json:"createdBy"`
	Featured      bool         `json:"featured"`
	IsActive      bool         `json:"isActive"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// viewBook populates the category and creator summaries and rewrites the
// storage keys into fetchable URLs. Dangling references render as null
// rather than failing the whole response.
func (s *Server) viewBook(ctx context.Context, book domain.Book) bookView {
	view := bookView{
		ID:            book.ID,
		Title:         book.Title,
		Author:        book.Author,
		Description:   book.Description,
		PublishedDate: book.PublishedDate,
		Image:         book.Image,
		ImageURL:      s.fileURL(ctx, book.Image),
		PDF:           book.PDF,
		PDFURL:        s.fileURL(ctx, book.PDF),
		Featured:      book.Featured,
		IsActive:      book.IsActive,
		CreatedAt:     book.CreatedAt,
		UpdatedAt:     book.UpdatedAt,
	}
	if category, err := s.app.GetCategory(book.CategoryID); err == nil {
		view.Category = &categoryRef{ID: category.ID, Name: category.Name}
	}
	if creator, err := s.app.GetUser(book.CreatedBy); err == nil {
		view.CreatedBy = &creatorRef{ID: creator.ID, Name: creator.Name, Email: creator.Email}
	}
	return view
}

func (s *Server) viewBooks(ctx context.Context, books []domain.Book) []bookView {
	views := make([]bookView, 0, len(books))
	for _, book := range books {
		views = append(views, s.viewBook(ctx, book))
	}
	return views
}

// fileURL resolves a storage key to an absolute URL, presigned when the
// blob store supports it.
func (s *Server) fileURL(ctx context.Context, key string) string {
	if key == "" {
		return ""
	}
	if s.signer != nil {
		if url, err := s.signer.PresignGet(ctx, key, presignExpiry); err == nil {
			return url
		}
	}
	return strings.TrimRight(s.publicBaseURL, "/") + "/uploads/" + key
}
