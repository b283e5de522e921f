// Package attachments correlates binary payloads with the fields that embed
// them. Binaries never travel inside the field JSON: each is replaced by a
// placeholder key (field_file_<field>[_<option>]) and registered under that
// key, and the save path resolves the keys to stored paths.
package attachments

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"sort"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"form-builder-backend/pkg/fields"
	"form-builder-backend/pkg/validator"
)

const (
	KeyPrefix = "field_file_"

	// FileRefPrefix marks a media value that points at a multipart part by name.
	FileRefPrefix = "file:"
)

var (
	ErrUnresolved      = errors.New("attachment placeholder has no matching file")
	ErrInvalidKey      = errors.New("invalid attachment key")
	ErrEmptyBinary     = errors.New("attachment is empty")
	ErrUnsupportedMIME = errors.New("attachment type is not allowed for this field")
	ErrTooLarge        = errors.New("attachment exceeds the upload size limit")
)

// Binary is one attachment payload.
type Binary struct {
	Name     string
	MimeType string
	Data     []byte
}

func (b Binary) Size() int64 { return int64(len(b.Data)) }

// Key returns the placeholder of the media file of field index i.
func Key(fieldIndex int) string {
	return KeyPrefix + strconv.Itoa(fieldIndex)
}

// OptionKey returns the placeholder of the image of option j of field i.
func OptionKey(fieldIndex, optionIndex int) string {
	return fmt.Sprintf("%s%d_%d", KeyPrefix, fieldIndex, optionIndex)
}

// ParseKey splits a placeholder into its indices. option is -1 for a field
// level key.
func ParseKey(key string) (field, option int, err error) {
	rest, ok := strings.CutPrefix(key, KeyPrefix)
	if !ok || rest == "" {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	parts := strings.Split(rest, "_")
	if len(parts) > 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	field, err = strconv.Atoi(parts[0])
	if err != nil || field < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	option = -1
	if len(parts) == 2 {
		option, err = strconv.Atoi(parts[1])
		if err != nil || option < 0 {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return field, option, nil
}

// IsPlaceholder reports whether value is a well formed placeholder key.
func IsPlaceholder(value string) bool {
	_, _, err := ParseKey(value)
	return err == nil
}

// Registry maps placeholder keys to binaries.
type Registry struct {
	items map[string]Binary
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Binary)}
}

// Bind registers b under key. The MIME type is sniffed from the content when
// the caller did not provide one.
func (r *Registry) Bind(key string, b Binary) error {
	if !IsPlaceholder(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if len(b.Data) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyBinary, key)
	}
	if b.MimeType == "" || b.MimeType == "application/octet-stream" {
		b.MimeType = mimetype.Detect(b.Data).String()
	}
	if b.Name == "" {
		b.Name = key + mimetype.Detect(b.Data).Extension()
	}
	r.items[key] = b
	return nil
}

func (r *Registry) Lookup(key string) (Binary, bool) {
	if r == nil {
		return Binary{}, false
	}
	b, ok := r.items[key]
	return b, ok
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge copies every entry of other into r; entries of other win.
func (r *Registry) Merge(other *Registry) {
	if other == nil {
		return
	}
	for k, v := range other.items {
		r.items[k] = v
	}
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.items)
}

// Extract replaces every inline binary reference in list (a data URI, or
// file:<name> naming an entry of files) with a placeholder and registers the
// binary. Existing stored paths and placeholders are left untouched.
func Extract(list []fields.Field, files map[string]Binary) ([]fields.Field, *Registry, error) {
	reg := NewRegistry()
	out := fields.Clone(list)

	for i, f := range out {
		switch {
		case f.Type().IsMedia():
			path, _ := f.MediaPath()
			key := Key(i)
			replaced, err := bindReference(reg, key, path, files)
			if err != nil {
				return nil, nil, fmt.Errorf("field %d: %w", i, err)
			}
			if replaced {
				p := f.Payload().(fields.MediaPayload)
				p.Path = key
				if out[i], err = f.WithPayload(p); err != nil {
					return nil, nil, err
				}
			}
		case f.Type() == fields.TypePicture:
			options := f.Options()
			changed := false
			for j, opt := range options {
				key := OptionKey(i, j)
				replaced, err := bindReference(reg, key, opt.ImagePath, files)
				if err != nil {
					return nil, nil, fmt.Errorf("field %d option %d: %w", i, j, err)
				}
				if replaced {
					options[j].ImagePath = key
					changed = true
				}
			}
			if changed {
				var err error
				if out[i], err = f.WithPayload(fields.ChoicePayload{Options: options}); err != nil {
					return nil, nil, err
				}
			}
		}
	}
	return out, reg, nil
}

func bindReference(reg *Registry, key, ref string, files map[string]Binary) (bool, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		b, err := DecodeDataURI(ref)
		if err != nil {
			return false, err
		}
		return true, reg.Bind(key, b)
	case strings.HasPrefix(ref, FileRefPrefix):
		name := strings.TrimPrefix(ref, FileRefPrefix)
		b, ok := files[name]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrUnresolved, name)
		}
		if b.Name == "" {
			b.Name = name
		}
		return true, reg.Bind(key, b)
	default:
		return false, nil
	}
}

// DecodeDataURI decodes a base64 data URI into raw bytes.
func DecodeDataURI(uri string) (Binary, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return Binary{}, errors.New("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Binary{}, errors.New("malformed data URI")
	}
	params := strings.Split(meta, ";")
	mimeType := strings.TrimSpace(params[0])
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return Binary{}, errors.New("only base64 data URIs are supported")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return Binary{}, fmt.Errorf("decode data URI: %w", err)
		}
	}
	return Binary{MimeType: mimeType, Data: data}, nil
}

// FromMultipart registers every file part whose name is a placeholder key.
func FromMultipart(form *multipart.Form, maxSize int64) (*Registry, error) {
	reg := NewRegistry()
	if form == nil {
		return reg, nil
	}
	for key, headers := range form.File {
		if !IsPlaceholder(key) || len(headers) == 0 {
			continue
		}
		header := headers[0]
		if maxSize > 0 && header.Size > maxSize {
			return nil, fmt.Errorf("%w: %s", ErrTooLarge, key)
		}
		b, err := readPart(header, maxSize)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if err := reg.Bind(key, b); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// NamedFiles reads every file part that is not a placeholder, keyed by part
// name, for resolving file:<name> references in Extract.
func NamedFiles(form *multipart.Form, maxSize int64) (map[string]Binary, error) {
	files := make(map[string]Binary)
	if form == nil {
		return files, nil
	}
	for name, headers := range form.File {
		if IsPlaceholder(name) || len(headers) == 0 {
			continue
		}
		b, err := readPart(headers[0], maxSize)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		files[name] = b
	}
	return files, nil
}

func readPart(header *multipart.FileHeader, maxSize int64) (Binary, error) {
	file, err := header.Open()
	if err != nil {
		return Binary{}, err
	}
	defer file.Close()

	reader := io.Reader(file)
	if maxSize > 0 {
		reader = io.LimitReader(file, maxSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return Binary{}, err
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return Binary{}, ErrTooLarge
	}
	return Binary{
		Name:     header.Filename,
		MimeType: mimetype.Detect(data).String(),
		Data:     data,
	}, nil
}

// Placeholders returns every placeholder key embedded in list.
func Placeholders(list []fields.Field) []string {
	var keys []string
	for _, f := range list {
		keys = append(keys, fieldPlaceholders(f)...)
	}
	return keys
}

func fieldPlaceholders(f fields.Field) []string {
	var keys []string
	if path, ok := f.MediaPath(); ok && IsPlaceholder(path) {
		keys = append(keys, path)
	}
	if f.Type() == fields.TypePicture {
		for _, opt := range f.Options() {
			if IsPlaceholder(opt.ImagePath) {
				keys = append(keys, opt.ImagePath)
			}
		}
	}
	return keys
}

// AllowedMIME lists the content types accepted for the media of t.
func AllowedMIME(t fields.Type) []string {
	switch t {
	case fields.TypeImage, fields.TypePicture:
		return []string{"image/*"}
	case fields.TypeVideo:
		return []string{"video/*"}
	case fields.TypePDF:
		return []string{"application/pdf"}
	default:
		return nil
	}
}

// Check verifies that every placeholder of list is registered in reg with a
// content type its field accepts.
func Check(list []fields.Field, reg *Registry) error {
	for _, f := range list {
		for _, key := range fieldPlaceholders(f) {
			b, ok := reg.Lookup(key)
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnresolved, key)
			}
			if allowed := AllowedMIME(f.Type()); allowed != nil && !validator.ValidateContentType(b.MimeType, allowed) {
				return fmt.Errorf("%w: %s (%s)", ErrUnsupportedMIME, key, b.MimeType)
			}
		}
	}
	return nil
}

// Resolve substitutes every placeholder of list with its stored path.
func Resolve(list []fields.Field, paths map[string]string) ([]fields.Field, error) {
	out := fields.Clone(list)
	for i, f := range out {
		if path, ok := f.MediaPath(); ok && IsPlaceholder(path) {
			stored, found := paths[path]
			if !found {
				return nil, fmt.Errorf("%w: %s", ErrUnresolved, path)
			}
			p := f.Payload().(fields.MediaPayload)
			p.Path = stored
			var err error
			if out[i], err = f.WithPayload(p); err != nil {
				return nil, err
			}
			continue
		}
		if f.Type() != fields.TypePicture {
			continue
		}
		options := f.Options()
		changed := false
		for j, opt := range options {
			if !IsPlaceholder(opt.ImagePath) {
				continue
			}
			stored, found := paths[opt.ImagePath]
			if !found {
				return nil, fmt.Errorf("%w: %s", ErrUnresolved, opt.ImagePath)
			}
			options[j].ImagePath = stored
			changed = true
		}
		if changed {
			var err error
			if out[i], err = f.WithPayload(fields.ChoicePayload{Options: options}); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
