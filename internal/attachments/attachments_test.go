package attachments

import (
	"bytes"
	"encoding/base64"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"form-builder-backend/pkg/fields"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")

func pngDataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
}

func withMedia(t *testing.T, typ fields.Type, path string) fields.Field {
	t.Helper()
	f := fields.MustNew(typ)
	p := f.Payload().(fields.MediaPayload)
	p.Path = path
	f, err := f.WithPayload(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return f
}

func withPictureImages(t *testing.T, paths ...string) fields.Field {
	t.Helper()
	f := fields.MustNew(fields.TypePicture).WithLabel("Pick")
	opts := f.Options()
	for i := range opts {
		if i < len(paths) {
			opts[i].ImagePath = paths[i]
		}
	}
	f, err := f.WithPayload(fields.ChoicePayload{}.WithOptions(opts))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return f
}

func TestParseKey(t *testing.T) {
	cases := []struct {
		key    string
		field  int
		option int
		ok     bool
	}{
		{"field_file_3", 3, -1, true},
		{"field_file_2_1", 2, 1, true},
		{"field_file_", 0, 0, false},
		{"field_file_a", 0, 0, false},
		{"field_file_1_2_3", 0, 0, false},
		{"/uploads/a.png", 0, 0, false},
	}
	for _, tc := range cases {
		field, option, err := ParseKey(tc.key)
		if tc.ok != (err == nil) {
			t.Fatalf("%q: unexpected error state %v", tc.key, err)
		}
		if tc.ok && (field != tc.field || option != tc.option) {
			t.Fatalf("%q: got %d/%d", tc.key, field, option)
		}
	}
	if Key(4) != "field_file_4" || OptionKey(4, 1) != "field_file_4_1" {
		t.Fatal("unexpected key format")
	}
}

func TestExtractReplacesBinariesWithPlaceholders(t *testing.T) {
	list := []fields.Field{
		fields.MustNew(fields.TypeShortAnswer).WithLabel("Name"),
		withMedia(t, fields.TypeImage, pngDataURI()),
		withPictureImages(t, "/uploads/kept.png", "file:cat.png"),
		withMedia(t, fields.TypePDF, "/uploads/existing.pdf"),
	}
	files := map[string]Binary{"cat.png": {Data: pngBytes}}

	out, reg, err := Extract(list, files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path, _ := out[1].MediaPath(); path != "field_file_1" {
		t.Fatalf("expected image placeholder, got %q", path)
	}
	opts := out[2].Options()
	if opts[0].ImagePath != "/uploads/kept.png" || opts[1].ImagePath != "field_file_2_1" {
		t.Fatalf("unexpected option paths: %+v", opts)
	}
	if path, _ := out[3].MediaPath(); path != "/uploads/existing.pdf" {
		t.Fatalf("stored path must be untouched, got %q", path)
	}
	if got := reg.Keys(); len(got) != 2 || got[0] != "field_file_1" || got[1] != "field_file_2_1" {
		t.Fatalf("unexpected registry keys: %v", got)
	}
	b, _ := reg.Lookup("field_file_2_1")
	if b.MimeType != "image/png" || b.Name != "cat.png" {
		t.Fatalf("unexpected binary: %s %s", b.Name, b.MimeType)
	}
	if path, _ := list[1].MediaPath(); path != pngDataURI() {
		t.Fatal("Extract must not modify its input")
	}

	if err := Check(out, reg); err != nil {
		t.Fatalf("expected all placeholders to resolve, got %v", err)
	}
}

func TestExtractMissingFileReference(t *testing.T) {
	_, _, err := Extract([]fields.Field{withMedia(t, fields.TypeVideo, "file:clip.mp4")}, nil)
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}

func TestCheckRejectsUnregisteredAndWrongType(t *testing.T) {
	list := []fields.Field{withMedia(t, fields.TypeImage, "field_file_0")}
	if err := Check(list, NewRegistry()); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}

	reg := NewRegistry()
	if err := reg.Bind("field_file_0", Binary{Data: pdfBytes}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Check(list, reg); !errors.Is(err, ErrUnsupportedMIME) {
		t.Fatalf("expected ErrUnsupportedMIME, got %v", err)
	}
}

func TestBindValidates(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Bind("photo", Binary{Data: pngBytes}); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if err := reg.Bind("field_file_0", Binary{}); !errors.Is(err, ErrEmptyBinary) {
		t.Fatalf("expected ErrEmptyBinary, got %v", err)
	}
}

func TestDecodeDataURI(t *testing.T) {
	b, err := DecodeDataURI(pngDataURI())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.MimeType != "image/png" || !bytes.Equal(b.Data, pngBytes) {
		t.Fatalf("unexpected decode result: %s %d bytes", b.MimeType, len(b.Data))
	}
	if _, err := DecodeDataURI("data:text/plain,hello"); err == nil {
		t.Fatal("expected error for non-base64 data URI")
	}
	if _, err := DecodeDataURI("data:image/png;base64"); err == nil {
		t.Fatal("expected error for missing payload")
	}
}

func TestResolveSubstitutesStoredPaths(t *testing.T) {
	list := []fields.Field{
		withMedia(t, fields.TypeImage, "field_file_0"),
		withPictureImages(t, "field_file_1_0", "/uploads/b.png"),
	}
	out, err := Resolve(list, map[string]string{
		"field_file_0":   "/uploads/forms/1/hero.png",
		"field_file_1_0": "/uploads/forms/1/a.png",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path, _ := out[0].MediaPath(); path != "/uploads/forms/1/hero.png" {
		t.Fatalf("unexpected media path %q", path)
	}
	if out[1].Options()[0].ImagePath != "/uploads/forms/1/a.png" {
		t.Fatalf("unexpected option path %q", out[1].Options()[0].ImagePath)
	}
	if len(Placeholders(out)) != 0 {
		t.Fatal("no placeholders may remain after resolution")
	}

	if _, err := Resolve(list, map[string]string{}); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}

func TestFromMultipartRegistersPlaceholderParts(t *testing.T) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("field_file_0", "hero.png")
	part.Write(pngBytes)
	other, _ := writer.CreateFormFile("avatar", "me.png")
	other.Write(pngBytes)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("parse multipart: %v", err)
	}

	reg, err := FromMultipart(req.MultipartForm, 1<<20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected only the placeholder part, got %v", reg.Keys())
	}
	b, _ := reg.Lookup("field_file_0")
	if b.Name != "hero.png" || b.MimeType != "image/png" {
		t.Fatalf("unexpected binary %s %s", b.Name, b.MimeType)
	}

	if _, err := FromMultipart(req.MultipartForm, 4); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	files, err := NamedFiles(req.MultipartForm, 1<<20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 1 || files["avatar"].Name != "me.png" {
		t.Fatalf("expected only the avatar part, got %v", files)
	}
}
