package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"form-builder-backend/internal/attachments"
	"form-builder-backend/pkg/logger"
	"form-builder-backend/pkg/utils"
	"form-builder-backend/pkg/validator"
)

// StoredFile is an attachment written to the upload directory.
type StoredFile struct {
	Placeholder string `json:"placeholder"`
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	MimeType    string `json:"mime_type"`
	Size        int64  `json:"size"`

	diskPath string
}

var ErrInvalidUploadPath = errors.New("invalid upload path")

type UploadService struct {
	uploadDir string
	baseURL   string
	maxSize   int64
}

func NewUploadService(uploadDir, baseURL string, maxSize int64) *UploadService {
	if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
		if err := os.MkdirAll(uploadDir, 0755); err != nil {
			logger.Error(err, "Failed to create upload directory", map[string]interface{}{"dir": uploadDir})
		}
	}
	if baseURL == "" {
		baseURL = "/uploads"
	}
	return &UploadService{
		uploadDir: uploadDir,
		baseURL:   strings.TrimRight(baseURL, "/"),
		maxSize:   maxSize,
	}
}

// StoreAll writes every binary of reg under the owner's directory. Files
// already written are removed when a later one fails.
func (s *UploadService) StoreAll(ownerID uint, reg *attachments.Registry) ([]StoredFile, error) {
	if s == nil {
		return nil, errors.New("upload service is not configured")
	}
	var stored []StoredFile
	for _, key := range reg.Keys() {
		b, _ := reg.Lookup(key)
		file, err := s.Store(ownerID, key, b)
		if err != nil {
			s.Remove(stored)
			return nil, fmt.Errorf("store %s: %w", key, err)
		}
		stored = append(stored, file)
	}
	return stored, nil
}

func (s *UploadService) Store(ownerID uint, placeholder string, b attachments.Binary) (StoredFile, error) {
	if b.Size() == 0 {
		return StoredFile{}, attachments.ErrEmptyBinary
	}
	if s.maxSize > 0 && !validator.ValidateFileSize(b.Size(), s.maxSize) {
		return StoredFile{}, attachments.ErrTooLarge
	}

	dir := filepath.Join(s.uploadDir, "forms", strconv.FormatUint(uint64(ownerID), 10))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return StoredFile{}, err
	}

	filename := s.generateFilename(dir, b)
	diskPath := filepath.Join(dir, filename)
	if err := os.WriteFile(diskPath, b.Data, 0644); err != nil {
		return StoredFile{}, err
	}

	return StoredFile{
		Placeholder: placeholder,
		URL:         s.baseURL + "/" + path.Join("forms", strconv.FormatUint(uint64(ownerID), 10), filename),
		Filename:    filename,
		MimeType:    b.MimeType,
		Size:        b.Size(),
		diskPath:    diskPath,
	}, nil
}

// Remove deletes stored files; it is used to roll back a failed save.
func (s *UploadService) Remove(files []StoredFile) {
	for _, f := range files {
		if err := s.removeFile(f.diskPath); err != nil {
			logger.Warn("Failed to remove upload", map[string]interface{}{"url": f.URL, "error": err.Error()})
		}
	}
}

func (s *UploadService) removeFile(diskPath string) error {
	if diskPath == "" {
		return nil
	}
	uploadDirAbs, err := filepath.Abs(s.uploadDir)
	if err != nil {
		return err
	}
	fileAbs, err := filepath.Abs(diskPath)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(fileAbs, uploadDirAbs+string(os.PathSeparator)) {
		return ErrInvalidUploadPath
	}
	if err := os.Remove(fileAbs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *UploadService) generateFilename(dir string, b attachments.Binary) string {
	// The extension follows the sniffed content, never the client's name.
	ext := mimetype.Detect(b.Data).Extension()
	if ext == "" {
		if declared := mimetype.Lookup(b.MimeType); declared != nil {
			ext = declared.Extension()
		}
	}

	baseName := strings.TrimSuffix(validator.SanitizeFilename(filepath.Base(b.Name)), filepath.Ext(b.Name))
	cleaned := utils.GenerateSlug(baseName, 60)
	if cleaned == "" {
		cleaned = "attachment"
	}

	candidate := fmt.Sprintf("%s-%s%s", cleaned, uuid.New().String()[:8], ext)
	for i := 1; fileExists(dir, candidate) && i < 1000; i++ {
		candidate = fmt.Sprintf("%s-%s-%d%s", cleaned, uuid.New().String()[:8], i, ext)
	}
	return candidate
}

func fileExists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

type uploadIndex interface {
	ListUploadPaths(ctx context.Context) ([]string, error)
}

// SweepOrphans removes files under the forms directory that no upload row
// references and that were last modified before grace ago. Files of saves
// still in flight are younger than grace and survive.
func (s *UploadService) SweepOrphans(ctx context.Context, index uploadIndex, grace time.Duration) (int, error) {
	paths, err := index.ListUploadPaths(ctx)
	if err != nil {
		return 0, fmt.Errorf("list uploads: %w", err)
	}
	referenced := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if rel, ok := strings.CutPrefix(p, s.baseURL+"/"); ok {
			referenced[path.Clean(rel)] = struct{}{}
		}
	}

	cutoff := time.Now().Add(-grace)
	removed := 0
	err = filepath.WalkDir(filepath.Join(s.uploadDir, "forms"), func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		rel, err := filepath.Rel(s.uploadDir, p)
		if err != nil {
			return nil
		}
		if _, ok := referenced[filepath.ToSlash(rel)]; ok {
			return nil
		}
		if err := s.removeFile(p); err != nil {
			logger.Warn("Failed to remove orphaned upload", map[string]interface{}{"path": rel, "error": err.Error()})
			return nil
		}
		removed++
		return nil
	})

	if removed > 0 {
		logger.Info("Removed orphaned uploads", map[string]interface{}{"count": removed})
	}
	return removed, err
}
