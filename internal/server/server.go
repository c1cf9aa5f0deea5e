// Package server exposes the HTTP surface: authentication, user and
// category administration, and the book catalog with its attachments.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"bookvault/internal/app"
	"bookvault/internal/ratelimit"
	"bookvault/internal/uploads"
	"bookvault/internal/util"
	"bookvault/pkg/domain"
)

const (
	jsonBodyLimit = 1 << 20
	// multipart ceiling: two files at the per-file cap plus form fields.
	uploadBodyLimit = 2*uploads.MaxFileBytes + jsonBodyLimit
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	PublicBaseURL string
	// Signer presigns file URLs when the blob store supports it (MinIO).
	Signer uploads.URLSigner
	// StaticDir, when set, serves stored files under /uploads/ (disk driver).
	StaticDir string
	// AuthLimiter rate limits login and register per client IP. Nil disables.
	AuthLimiter *ratelimit.FixedWindowLimiter
}

// Server exposes the catalog HTTP endpoints.
type Server struct {
	app           *app.App
	publicBaseURL string
	signer        uploads.URLSigner
	limiter       *ratelimit.FixedWindowLimiter
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:           cfg.App,
		publicBaseURL: strings.TrimSpace(cfg.PublicBaseURL),
		signer:        cfg.Signer,
		limiter:       cfg.AuthLimiter,
		mux:           http.NewServeMux(),
	}
	s.routes(cfg.StaticDir)
	return s
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.withRecover(s.mux)))))
}

func (s *Server) routes(staticDir string) {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/register", s.withAuthRate(http.HandlerFunc(s.handleRegister)))
	s.mux.Handle("/login", s.withAuthRate(http.HandlerFunc(s.handleLogin)))
	s.mux.Handle("/logout", s.withUser(s.handleLogout))

	s.mux.Handle("/profile", s.withUser(s.handleProfile))
	s.mux.Handle("/users", s.withUser(s.handleUsers))
	s.mux.Handle("/user/", s.withUser(s.handleUserByID))

	s.mux.Handle("/category", s.withUser(s.handleCategories))
	s.mux.Handle("/category/", s.withUser(s.handleCategoryByID))

	s.mux.Handle("/book", s.withUser(s.handleCreateBook))
	s.mux.HandleFunc("/books", s.handleListBooks)
	s.mux.HandleFunc("/books/featured", s.handleFeaturedBooks)
	s.mux.HandleFunc("/book/", s.handleBookByID)

	if staticDir != "" {
		s.mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(staticDir))))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			unauthorized(w)
			return
		}
		user, ok, err := s.app.UserFromToken(token)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !ok {
			unauthorized(w)
			return
		}
		next(w, r, user)
	})
}

func (s *Server) withAuthRate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(util.ClientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "Too many requests", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic recovered", "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "Internal server error", "unexpected failure")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var in app.RegisterInput
	if !decodeJSON(w, r, &in) {
		return
	}
	user, err := s.app.Register(in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "User registered successfully", user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	user, token, err := s.app.Login(in.Email, in.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, "Login successful", map[string]any{
		"user":  user,
		"token": token,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, _ := bearerToken(r)
	if err := s.app.Logout(token); err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, "Logged out successfully", nil)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		writeData(w, http.StatusOK, "Profile fetched successfully", user)
	case http.MethodPut:
		var in app.UpdateUserInput
		if !decodeJSON(w, r, &in) {
			return
		}
		updated, err := s.app.UpdateUser(user, user.ID, in)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, "Profile updated successfully", updated)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	page, limit := pageParams(r)
	users, total, err := s.app.ListUsers(r.URL.Query().Get("search"), page, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, "Users fetched successfully", users, page, total, app.TotalPages(total, limit), setTotalUsers)
}

func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id := pathID(r, "/user/")
	if id == "" {
		notFound(w)
		return
	}
	switch r.Method {
	case http.MethodGet:
		user, err := s.app.GetUser(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, "User fetched successfully", user)
	case http.MethodPut:
		var in app.UpdateUserInput
		if !decodeJSON(w, r, &in) {
			return
		}
		updated, err := s.app.UpdateUser(actor, id, in)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, "User updated successfully", updated)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request, _ domain.User) {
	switch r.Method {
	case http.MethodPost:
		var in app.CategoryInput
		if !decodeJSON(w, r, &in) {
			return
		}
		category, err := s.app.CreateCategory(in)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeData(w, http.StatusCreated, "Category created successfully", category)
	case http.MethodGet:
		page, limit := pageParams(r)
		categories, total, err := s.app.ListCategories(r.URL.Query().Get("search"), page, limit)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeList(w, "Categories fetched successfully", categories, page, total, app.TotalPages(total, limit), setTotalCategories)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCategoryByID(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id := pathID(r, "/category/")
	if id == "" {
		notFound(w)
		return
	}
	switch r.Method {
	case http.MethodGet:
		category, err := s.app.GetCategory(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, "Category fetched successfully", category)
	case http.MethodPut:
		var in app.CategoryInput
		if !decodeJSON(w, r, &in) {
			return
		}
		category, err := s.app.UpdateCategory(actor, id, in)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, "Category updated successfully", category)
	case http.MethodDelete:
		if err := s.app.DeleteCategory(actor, id); err != nil {
			writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, "Category deleted successfully", nil)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, uploadBodyLimit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", "invalid form data")
		return
	}
	in := app.CreateBookInput{
		Title:         r.FormValue("title"),
		Author:        r.FormValue("author"),
		Description:   r.FormValue("description"),
		CategoryID:    categoryField(r),
		PublishedDate: r.FormValue("publishedDate"),
	}
	if v := r.FormValue("featured"); v != "" {
		featured, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Validation failed", "featured must be a boolean")
			return
		}
		in.Featured = featured
	}
	var err error
	if in.Image, err = readFormFile(r, uploads.FieldImage); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	if in.PDF, err = readFormFile(r, uploads.FieldPDF); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	book, err := s.app.CreateBook(r.Context(), user, in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "Book created successfully", s.viewBook(r.Context(), book))
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	page, limit := pageParams(r)
	query := r.URL.Query()
	books, total, err := s.app.ListBooks(query.Get("search"), query.Get("category"), page, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, "Books fetched successfully", s.viewBooks(r.Context(), books), page, total, app.TotalPages(total, limit), setTotalBooks)
}

func (s *Server) handleFeaturedBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.app.ListFeaturedBooks()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, "Featured books fetched successfully", s.viewBooks(r.Context(), books))
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "/book/")
	if id == "" {
		notFound(w)
		return
	}
	switch r.Method {
	case http.MethodGet:
		book, err := s.app.GetBook(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, "Book fetched successfully", s.viewBook(r.Context(), book))
	case http.MethodPut, http.MethodDelete:
		token, ok := bearerToken(r)
		if !ok {
			unauthorized(w)
			return
		}
		actor, ok, err := s.app.UserFromToken(token)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !ok {
			unauthorized(w)
			return
		}
		if r.Method == http.MethodDelete {
			if err := s.app.DeleteBook(r.Context(), actor, id); err != nil {
				writeAppError(w, err)
				return
			}
			writeData(w, http.StatusOK, "Book deleted successfully", nil)
			return
		}
		s.handleUpdateBook(w, r, actor, id)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, actor domain.User, id string) {
	in, ok := decodeBookUpdate(w, r)
	if !ok {
		return
	}
	book, err := s.app.UpdateBook(r.Context(), actor, id, in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, "Book updated successfully", s.viewBook(r.Context(), book))
}

// decodeBookUpdate accepts either multipart (field updates plus attachment
// replacement) or plain JSON for field-only updates.
func decodeBookUpdate(w http.ResponseWriter, r *http.Request) (app.UpdateBookInput, bool) {
	var in app.UpdateBookInput
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, uploadBodyLimit)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "Validation failed", "invalid form data")
			return in, false
		}
		in.Title = formString(r, "title")
		in.Author = formString(r, "author")
		in.Description = formString(r, "description")
		in.CategoryID = formString(r, "categoryId")
		if in.CategoryID == nil {
			in.CategoryID = formString(r, "category")
		}
		in.PublishedDate = formString(r, "publishedDate")
		var ok bool
		if in.Featured, ok = formBool(w, r, "featured"); !ok {
			return in, false
		}
		if in.IsActive, ok = formBool(w, r, "isActive"); !ok {
			return in, false
		}
		if hasFormFile(r, uploads.FieldImage) {
			file, err := readFormFile(r, uploads.FieldImage)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Validation failed", err.Error())
				return in, false
			}
			in.Image = file
		}
		if hasFormFile(r, uploads.FieldPDF) {
			file, err := readFormFile(r, uploads.FieldPDF)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Validation failed", err.Error())
				return in, false
			}
			in.PDF = file
		}
		return in, true
	}

	var body struct {
		Title         *string `json:"title"`
		Author        *string `json:"author"`
		Description   *string `json:"description"`
		CategoryID    *string `json:"categoryId"`
		PublishedDate *string `json:"publishedDate"`
		Featured      *bool   `json:"featured"`
		IsActive      *bool   `json:"isActive"`
	}
	if !decodeJSON(w, r, &body) {
		return in, false
	}
	in.Title = body.Title
	in.Author = body.Author
	in.Description = body.Description
	in.CategoryID = body.CategoryID
	in.PublishedDate = body.PublishedDate
	in.Featured = body.Featured
	in.IsActive = body.IsActive
	return in, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, jsonBodyLimit)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", "invalid JSON body")
		return false
	}
	return true
}

// readFormFile loads one multipart file fully into memory. The per-file
// size ceiling is enforced again downstream by the attachment manager.
func readFormFile(r *http.Request, field string) (*app.FileUpload, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%s file is required (field: %s)", field, field)
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, uploads.MaxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s file: %w", field, err)
	}
	mimeType := header.Header.Get("Content-Type")
	return &app.FileUpload{
		Field:    field,
		Filename: header.Filename,
		MimeType: mimeType,
		Data:     data,
	}, nil
}

func hasFormFile(r *http.Request, field string) bool {
	return r.MultipartForm != nil && len(r.MultipartForm.File[field]) > 0
}

func formString(r *http.Request, field string) *string {
	if r.MultipartForm == nil {
		return nil
	}
	values, ok := r.MultipartForm.Value[field]
	if !ok || len(values) == 0 {
		return nil
	}
	return &values[0]
}

func formBool(w http.ResponseWriter, r *http.Request, field string) (*bool, bool) {
	raw := formString(r, field)
	if raw == nil || *raw == "" {
		return nil, true
	}
	value, err := strconv.ParseBool(*raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", field+" must be a boolean")
		return nil, false
	}
	return &value, true
}

func categoryField(r *http.Request) string {
	if v := r.FormValue("categoryId"); v != "" {
		return v
	}
	return r.FormValue("category")
}

func pageParams(r *http.Request) (int, int) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))
	return app.NormalizePage(page, limit)
}

func pathID(r *http.Request, prefix string) string {
	id := strings.TrimPrefix(r.URL.Path, prefix)
	if id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
