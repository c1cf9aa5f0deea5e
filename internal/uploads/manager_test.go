package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
)

// minimalPDF assembles a one-page PDF with a correct xref table.
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

func TestAcceptFieldAndTypeRules(t *testing.T) {
	m := NewManager(NewMemoryBlobStore())

	cases := []struct {
		name     string
		field    string
		mime     string
		size     int64
		filename string
		wantErr  error
	}{
		{"png under image", FieldImage, "image/png", 100, "cover.png", nil},
		{"jpeg under image", FieldImage, "image/jpeg", 100, "cover.jpg", nil},
		{"pdf under pdf", FieldPDF, "application/pdf", 100, "book.pdf", nil},
		{"text under image", FieldImage, "text/plain", 100, "notes.txt", ErrUnsupportedType},
		{"image under pdf", FieldPDF, "image/png", 100, "cover.png", ErrUnsupportedType},
		{"octet-stream under pdf", FieldPDF, "application/octet-stream", 100, "book.pdf", ErrUnsupportedType},
		{"unknown field", "attachment", "image/png", 100, "cover.png", ErrUnexpectedField},
		{"image at ceiling", FieldImage, "image/png", MaxFileBytes, "cover.png", nil},
		{"image over ceiling", FieldImage, "image/png", MaxFileBytes + 1, "cover.png", ErrTooLarge},
		{"pdf over ceiling", FieldPDF, "application/pdf", MaxFileBytes + 1, "book.pdf", ErrTooLarge},
		{"empty file", FieldImage, "image/png", 0, "cover.png", ErrEmptyFile},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := m.Accept(tc.field, tc.mime, tc.size, tc.filename)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if key == "" {
				t.Fatalf("expected a storage key")
			}
		})
	}
}

func TestStorageKeyShape(t *testing.T) {
	m := NewManager(NewMemoryBlobStore())
	imgKey, err := m.Accept(FieldImage, "image/png", 10, "My Cover.PNG")
	if err != nil {
		t.Fatalf("accept image: %v", err)
	}
	if !strings.HasPrefix(imgKey, "images/image-") || !strings.HasSuffix(imgKey, ".png") {
		t.Fatalf("image key = %q", imgKey)
	}
	pdfKey, err := m.Accept(FieldPDF, "application/pdf", 10, "book.pdf")
	if err != nil {
		t.Fatalf("accept pdf: %v", err)
	}
	if !strings.HasPrefix(pdfKey, "pdfs/pdf-") || !strings.HasSuffix(pdfKey, ".pdf") {
		t.Fatalf("pdf key = %q", pdfKey)
	}
	if strings.Contains(imgKey, "\\") || strings.Contains(pdfKey, "\\") {
		t.Fatalf("keys must use forward slashes")
	}

	// Keys are collision-resistant across identical inputs.
	again, err := m.Accept(FieldImage, "image/png", 10, "My Cover.PNG")
	if err != nil {
		t.Fatalf("accept again: %v", err)
	}
	if again == imgKey {
		t.Fatalf("two accepts produced the same key %q", imgKey)
	}

	// A hostile extension is dropped, not stored.
	key, err := m.Accept(FieldImage, "image/png", 10, "weird.p/../ng")
	if err != nil {
		t.Fatalf("accept weird name: %v", err)
	}
	if strings.Contains(key, "..") {
		t.Fatalf("key %q carries path traversal", key)
	}
}

func TestStoreRejectsCorruptPDFBeforeWrite(t *testing.T) {
	blobs := NewMemoryBlobStore()
	m := NewManager(blobs)
	_, err := m.Store(context.Background(), FieldPDF, "book.pdf", "application/pdf", []byte("definitely not a pdf"))
	if !errors.Is(err, ErrCorruptPDF) {
		t.Fatalf("err = %v, want ErrCorruptPDF", err)
	}
	if blobs.Len() != 0 {
		t.Fatalf("corrupt payload must not be written, have %d blobs", blobs.Len())
	}
}

func TestStoreAcceptsWellFormedPDF(t *testing.T) {
	blobs := NewMemoryBlobStore()
	m := NewManager(blobs)
	key, err := m.Store(context.Background(), FieldPDF, "book.pdf", "application/pdf", minimalPDF())
	if err != nil {
		t.Fatalf("store pdf: %v", err)
	}
	ok, err := blobs.Exists(context.Background(), key)
	if err != nil || !ok {
		t.Fatalf("stored blob missing: ok=%v err=%v", ok, err)
	}
}

func TestReplaceWritesNewThenDeletesOld(t *testing.T) {
	blobs := NewMemoryBlobStore()
	m := NewManager(blobs)
	ctx := context.Background()

	oldKey, err := m.Store(ctx, FieldImage, "old.png", "image/png", []byte("old-bytes"))
	if err != nil {
		t.Fatalf("store old: %v", err)
	}
	newKey, err := m.Replace(ctx, oldKey, FieldImage, "new.png", "image/png", []byte("new-bytes"))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if newKey == oldKey {
		t.Fatalf("replace reused the old key")
	}
	if ok, _ := blobs.Exists(ctx, oldKey); ok {
		t.Fatalf("old blob still present after replace")
	}
	if ok, _ := blobs.Exists(ctx, newKey); !ok {
		t.Fatalf("new blob missing after replace")
	}
}

func TestReplaceKeepsOldWhenWriteFails(t *testing.T) {
	blobs := NewMemoryBlobStore()
	m := NewManager(blobs)
	ctx := context.Background()

	oldKey, err := m.Store(ctx, FieldImage, "old.png", "image/png", []byte("old-bytes"))
	if err != nil {
		t.Fatalf("store old: %v", err)
	}
	blobs.PutErr = errors.New("disk full")
	if _, err := m.Replace(ctx, oldKey, FieldImage, "new.png", "image/png", []byte("new-bytes")); err == nil {
		t.Fatalf("expected replace to fail")
	}
	if ok, _ := blobs.Exists(ctx, oldKey); !ok {
		t.Fatalf("old blob must survive a failed replacement write")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	blobs := NewMemoryBlobStore()
	m := NewManager(blobs)
	ctx := context.Background()

	key, err := m.Store(ctx, FieldImage, "a.png", "image/png", []byte("bytes"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := m.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.Delete(ctx, key); err != nil {
		t.Fatalf("second delete must not error: %v", err)
	}
	if err := m.Delete(ctx, "pdfs/never-existed.pdf"); err != nil {
		t.Fatalf("delete of unknown key must not error: %v", err)
	}
}

func TestDiskStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	disk, err := NewDiskStore(dir)
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	ctx := context.Background()
	key := "images/image-test.png"
	if err := disk.Put(ctx, key, strings.NewReader("payload"), 7, "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err := disk.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("exists: ok=%v err=%v", ok, err)
	}
	if err := disk.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err = disk.Exists(ctx, key)
	if err != nil || ok {
		t.Fatalf("blob should be gone: ok=%v err=%v", ok, err)
	}
	if err := disk.Delete(ctx, key); err != nil {
		t.Fatalf("deleting a missing file must not error: %v", err)
	}
}
