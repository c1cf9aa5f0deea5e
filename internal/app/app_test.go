package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"bookvault/internal/uploads"
	"bookvault/pkg/domain"
	"bookvault/pkg/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// minimalPDF builds a one-page PDF with a correct xref table so the
// upload sanity check accepts it.
func minimalPDF() []byte {
	var b bytes.Buffer
	offsets := make([]int, 4)
	b.WriteString("%PDF-1.4\n")
	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n")
	start := b.Len()
	b.WriteString("xref\n0 4\n")
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= 3; i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	b.WriteString("trailer\n<< /Size 4 /Root 1 0 R >>\nstartxref\n")
	b.WriteString(strconv.Itoa(start))
	b.WriteString("\n%%EOF\n")
	return b.Bytes()
}

func newTestApp(t *testing.T) (*App, *store.MemoryStore, *uploads.MemoryBlobStore) {
	t.Helper()
	st := store.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore(testSecret, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	blobs := uploads.NewMemoryBlobStore()
	return New(st, sessions, uploads.NewManager(blobs)), st, blobs
}

func registerUser(t *testing.T, a *App, name, email string) domain.User {
	t.Helper()
	user, err := a.Register(RegisterInput{Name: name, Email: email, Password: "password123"})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return user
}

func pngUpload() *FileUpload {
	return &FileUpload{Field: uploads.FieldImage, Filename: "cover.png", MimeType: "image/png", Data: []byte("png-bytes")}
}

func pdfUpload(t *testing.T) *FileUpload {
	t.Helper()
	return &FileUpload{Field: uploads.FieldPDF, Filename: "book.pdf", MimeType: "application/pdf", Data: minimalPDF()}
}

func createCategory(t *testing.T, a *App, name string) domain.Category {
	t.Helper()
	category, err := a.CreateCategory(CategoryInput{Name: name})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	return category
}

func TestRegisterFirstUserBecomesAdmin(t *testing.T) {
	a, _, _ := newTestApp(t)

	first := registerUser(t, a, "Alice", "alice@example.com")
	if first.Role != domain.RoleAdmin {
		t.Fatalf("first user role = %q, want admin", first.Role)
	}
	second := registerUser(t, a, "Bob", "bob@example.com")
	if second.Role != domain.RoleUser {
		t.Fatalf("second user role = %q, want user", second.Role)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	a, _, _ := newTestApp(t)
	registerUser(t, a, "Alice", "alice@example.com")

	_, err := a.Register(RegisterInput{Name: "Other", Email: "ALICE@example.com", Password: "password123"})
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("register err = %v, want ErrEmailExists", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	a, _, _ := newTestApp(t)

	cases := []RegisterInput{
		{Name: "", Email: "a@example.com", Password: "password123"},
		{Name: "A", Email: "", Password: "password123"},
		{Name: "A", Email: "not-an-email", Password: "password123"},
		{Name: "A", Email: "a@example.com", Password: "short"},
	}
	for i, in := range cases {
		if _, err := a.Register(in); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: err = %v, want ErrValidation", i, err)
		}
	}
}

func TestLoginRoundTrip(t *testing.T) {
	a, _, _ := newTestApp(t)
	registered := registerUser(t, a, "Alice", "alice@example.com")

	user, token, err := a.Login("Alice@Example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != registered.ID {
		t.Fatalf("login user = %s, want %s", user.ID, registered.ID)
	}
	resolved, ok, err := a.UserFromToken(token)
	if err != nil || !ok {
		t.Fatalf("user from token: ok=%v err=%v", ok, err)
	}
	if resolved.ID != registered.ID {
		t.Fatalf("token user = %s, want %s", resolved.ID, registered.ID)
	}

	if err := a.Logout(token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok, _ := a.UserFromToken(token); ok {
		t.Fatalf("token still valid after logout")
	}
}

func TestLoginBadCredentials(t *testing.T) {
	a, _, _ := newTestApp(t)
	registerUser(t, a, "Alice", "alice@example.com")

	if _, _, err := a.Login("alice@example.com", "wrongpassword"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := a.Login("nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email err = %v, want ErrInvalidCredentials", err)
	}
}

func TestUpdateUserRoleGuard(t *testing.T) {
	a, _, _ := newTestApp(t)
	admin := registerUser(t, a, "Admin", "admin@example.com")
	user := registerUser(t, a, "Bob", "bob@example.com")

	role := string(domain.RoleAdmin)
	if _, err := a.UpdateUser(user, user.ID, UpdateUserInput{Role: &role}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("self role elevation err = %v, want ErrForbidden", err)
	}

	updated, err := a.UpdateUser(admin, user.ID, UpdateUserInput{Role: &role})
	if err != nil {
		t.Fatalf("admin role change: %v", err)
	}
	if updated.Role != domain.RoleAdmin {
		t.Fatalf("role = %q, want admin", updated.Role)
	}
}

func TestUpdateUserOwnership(t *testing.T) {
	a, _, _ := newTestApp(t)
	registerUser(t, a, "Admin", "admin@example.com")
	bob := registerUser(t, a, "Bob", "bob@example.com")
	carol := registerUser(t, a, "Carol", "carol@example.com")

	name := "Hacked"
	if _, err := a.UpdateUser(carol, bob.ID, UpdateUserInput{Name: &name}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("cross-user update err = %v, want ErrForbidden", err)
	}

	name = "Robert"
	updated, err := a.UpdateUser(bob, bob.ID, UpdateUserInput{Name: &name})
	if err != nil {
		t.Fatalf("self update: %v", err)
	}
	if updated.Name != "Robert" {
		t.Fatalf("name = %q, want Robert", updated.Name)
	}
}

func TestUpdateUserPasswordRehash(t *testing.T) {
	a, _, _ := newTestApp(t)
	alice := registerUser(t, a, "Alice", "alice@example.com")

	pw := "newpassword456"
	if _, err := a.UpdateUser(alice, alice.ID, UpdateUserInput{Password: &pw}); err != nil {
		t.Fatalf("update password: %v", err)
	}
	if _, _, err := a.Login("alice@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still works")
	}
	if _, _, err := a.Login("alice@example.com", pw); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestCategoryAdminOnlyMutation(t *testing.T) {
	a, _, _ := newTestApp(t)
	admin := registerUser(t, a, "Admin", "admin@example.com")
	user := registerUser(t, a, "Bob", "bob@example.com")
	category := createCategory(t, a, "Fiction")

	if _, err := a.UpdateCategory(user, category.ID, CategoryInput{Name: "Hacked"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("user update err = %v, want ErrForbidden", err)
	}
	if err := a.DeleteCategory(user, category.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("user delete err = %v, want ErrForbidden", err)
	}

	updated, err := a.UpdateCategory(admin, category.ID, CategoryInput{Name: "Literary Fiction"})
	if err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if updated.Name != "Literary Fiction" {
		t.Fatalf("name = %q", updated.Name)
	}
	if err := a.DeleteCategory(admin, category.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := a.GetCategory(category.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete err = %v, want ErrNotFound", err)
	}
}

func TestCreateBookRequiresBothFiles(t *testing.T) {
	a, _, blobs := newTestApp(t)
	user := registerUser(t, a, "Alice", "alice@example.com")
	category := createCategory(t, a, "Fiction")

	in := CreateBookInput{Title: "T", Author: "A", CategoryID: category.ID, Image: pngUpload()}
	if _, err := a.CreateBook(context.Background(), user, in); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing pdf err = %v, want ErrValidation", err)
	}
	if blobs.Len() != 0 {
		t.Fatalf("blobs written for rejected create: %d", blobs.Len())
	}
}

func TestCreateBookRejectsBadImageBeforeAnyWrite(t *testing.T) {
	a, st, blobs := newTestApp(t)
	user := registerUser(t, a, "Alice", "alice@example.com")
	category := createCategory(t, a, "Fiction")

	in := CreateBookInput{
		Title:      "T",
		Author:     "A",
		CategoryID: category.ID,
		Image:      &FileUpload{Field: uploads.FieldImage, Filename: "notes.txt", MimeType: "text/plain", Data: []byte("text")},
		PDF:        pdfUpload(t),
	}
	if _, err := a.CreateBook(context.Background(), user, in); !errors.Is(err, ErrValidation) {
		t.Fatalf("txt image err = %v, want ErrValidation", err)
	}
	if blobs.Len() != 0 {
		t.Fatalf("blobs written for rejected create: %d", blobs.Len())
	}
	if _, total, err := st.ListBooks(store.BookFilter{}, 1, 10); err != nil || total != 0 {
		t.Fatalf("book records after rejected create: total=%d err=%v", total, err)
	}
}

func TestCreateBookCompensatesFailedPDFWrite(t *testing.T) {
	a, _, blobs := newTestApp(t)
	user := registerUser(t, a, "Alice", "alice@example.com")
	category := createCategory(t, a, "Fiction")

	// Corrupt PDF passes Accept (right MIME, right size) but fails the
	// reader check after the image blob is already stored.
	in := CreateBookInput{
		Title:      "T",
		Author:     "A",
		CategoryID: category.ID,
		Image:      pngUpload(),
		PDF:        &FileUpload{Field: uploads.FieldPDF, Filename: "bad.pdf", MimeType: "application/pdf", Data: []byte("not a pdf")},
	}
	if _, err := a.CreateBook(context.Background(), user, in); !errors.Is(err, ErrValidation) {
		t.Fatalf("corrupt pdf err = %v, want ErrValidation", err)
	}
	if blobs.Len() != 0 {
		t.Fatalf("orphan blobs after failed create: %d", blobs.Len())
	}
}

func TestUpdateBookReplaceImage(t *testing.T) {
	a, _, blobs := newTestApp(t)
	user := registerUser(t, a, "Alice", "alice@example.com")
	category := createCategory(t, a, "Fiction")

	book, err := a.CreateBook(context.Background(), user, CreateBookInput{
		Title: "T", Author: "A", CategoryID: category.ID,
		Image: pngUpload(), PDF: pdfUpload(t),
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	oldKey := book.Image

	updated, err := a.UpdateBook(context.Background(), user, book.ID, UpdateBookInput{
		Image: &FileUpload{Field: uploads.FieldImage, Filename: "new.jpg", MimeType: "image/jpeg", Data: []byte("jpg")},
	})
	if err != nil {
		t.Fatalf("update book: %v", err)
	}
	if updated.Image == oldKey {
		t.Fatalf("image key unchanged after replace")
	}
	if ok, _ := blobs.Exists(context.Background(), oldKey); ok {
		t.Fatalf("old image blob still present")
	}
	if ok, _ := blobs.Exists(context.Background(), updated.Image); !ok {
		t.Fatalf("new image blob missing")
	}
}

func TestUpdateBookNonOwnerForbidden(t *testing.T) {
	a, _, _ := newTestApp(t)
	registerUser(t, a, "Admin", "admin@example.com")
	owner := registerUser(t, a, "Owner", "owner@example.com")
	other := registerUser(t, a, "Other", "other@example.com")
	category := createCategory(t, a, "Fiction")

	book, err := a.CreateBook(context.Background(), owner, CreateBookInput{
		Title: "T", Author: "A", CategoryID: category.ID,
		Image: pngUpload(), PDF: pdfUpload(t),
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}

	title := "Hacked"
	if _, err := a.UpdateBook(context.Background(), other, book.ID, UpdateBookInput{Title: &title}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner update err = %v, want ErrForbidden", err)
	}
	if err := a.DeleteBook(context.Background(), other, book.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner delete err = %v, want ErrForbidden", err)
	}
	unchanged, err := a.GetBook(book.ID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if unchanged.Title != "T" {
		t.Fatalf("title changed by forbidden update: %q", unchanged.Title)
	}
}

func TestDeleteBookCascadesBlobs(t *testing.T) {
	a, _, blobs := newTestApp(t)
	user := registerUser(t, a, "Alice", "alice@example.com")
	category := createCategory(t, a, "Fiction")

	book, err := a.CreateBook(context.Background(), user, CreateBookInput{
		Title: "T", Author: "A", CategoryID: category.ID,
		Image: pngUpload(), PDF: pdfUpload(t),
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	if blobs.Len() != 2 {
		t.Fatalf("blob count = %d, want 2", blobs.Len())
	}

	if err := a.DeleteBook(context.Background(), user, book.ID); err != nil {
		t.Fatalf("delete book: %v", err)
	}
	if _, err := a.GetBook(book.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete err = %v, want ErrNotFound", err)
	}
	if blobs.Len() != 0 {
		t.Fatalf("blobs remaining after delete: %d", blobs.Len())
	}
}

func TestListBooksPagination(t *testing.T) {
	a, _, _ := newTestApp(t)
	user := registerUser(t, a, "Alice", "alice@example.com")
	category := createCategory(t, a, "Fiction")

	for i := 0; i < 25; i++ {
		if _, err := a.CreateBook(context.Background(), user, CreateBookInput{
			Title:      fmt.Sprintf("Tolkien Tales %02d", i),
			Author:     "J.R.R. Tolkien",
			CategoryID: category.ID,
			Image:      pngUpload(),
			PDF:        pdfUpload(t),
		}); err != nil {
			t.Fatalf("create book %d: %v", i, err)
		}
	}

	books, total, err := a.ListBooks("tolkien", "", 1, 10)
	if err != nil {
		t.Fatalf("list books: %v", err)
	}
	if len(books) != 10 {
		t.Fatalf("page size = %d, want 10", len(books))
	}
	if total != 25 {
		t.Fatalf("total = %d, want 25", total)
	}
	if pages := TotalPages(total, 10); pages != 3 {
		t.Fatalf("totalPages = %d, want 3", pages)
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total int64
		limit int
		want  int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{25, 10, 3},
		{25, 0, 3},
	}
	for _, c := range cases {
		if got := TotalPages(c.total, c.limit); got != c.want {
			t.Fatalf("TotalPages(%d, %d) = %d, want %d", c.total, c.limit, got, c.want)
		}
	}
}
