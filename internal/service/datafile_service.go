package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"docket/internal/blob"
	"docket/internal/middleware"
	"docket/internal/models"
)

// DefaultMaxUploadBytes is the data-file ceiling when none is configured.
const DefaultMaxUploadBytes int64 = 100 * 1024 * 1024

// UploadInput describes one data file upload. Size is the client-declared length.
type UploadInput struct {
	FileName string
	MimeType string
	DataYear int
	DataCode string
	Size     int64
	Body     io.Reader
}

// DataFileService stores generic data files in the blob store and indexes them by year.
type DataFileService struct {
	db       *gorm.DB
	store    blob.Store
	maxBytes int64
	now      func() time.Time
}

func NewDataFileService(db *gorm.DB, store blob.Store, maxBytes int64) *DataFileService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &DataFileService{db: db, store: store, maxBytes: maxBytes, now: time.Now}
}

var unsafeCodeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// DataFileKey returns the blob key for a file uploaded at t.
func DataFileKey(year int, code, fileName string, t time.Time) string {
	stem := unsafeCodeChars.ReplaceAllString(strings.TrimSpace(code), "_")
	stem = strings.Trim(stem, "_")
	if stem == "" {
		stem = "file_" + strconv.FormatInt(t.Unix(), 36)
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if unsafeCodeChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	return fmt.Sprintf("datafiles/%d/%s_%d%s", year, stem, t.UnixMilli(), ext)
}

// Upload validates in and stores the body. Oversized uploads are refused before the store is touched
// when the declared size is known, and removed again when the body turns out larger than declared.
func (s *DataFileService) Upload(ctx context.Context, actor models.Actor, in UploadInput) (*models.DataFile, error) {
	if actor.Role == models.RoleViewer || !actor.Role.Valid() {
		return nil, models.NewUnauthorizedError("Your role cannot upload data files")
	}
	if in.DataYear <= 0 {
		return nil, models.NewValidationError("data year is required")
	}
	if strings.TrimSpace(in.FileName) == "" || in.Body == nil {
		return nil, models.NewValidationError("a file is required")
	}
	if in.Size > s.maxBytes {
		return nil, models.NewValidationError(fmt.Sprintf("file exceeds the %d MB limit", s.maxBytes/(1024*1024)))
	}

	key := DataFileKey(in.DataYear, in.DataCode, in.FileName, s.now())
	info, err := s.store.Put(ctx, key, io.LimitReader(in.Body, s.maxBytes+1), blob.PutOptions{
		ContentType: in.MimeType,
		Metadata:    map[string]string{"file-name": in.FileName},
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if info.Size > s.maxBytes {
		s.removeBlob(ctx, key)
		return nil, models.NewValidationError(fmt.Sprintf("file exceeds the %d MB limit", s.maxBytes/(1024*1024)))
	}

	f := &models.DataFile{
		FileName:     filepath.Base(in.FileName),
		FilePath:     key,
		FileSize:     info.Size,
		MimeType:     in.MimeType,
		DataYear:     in.DataYear,
		DataCode:     strings.TrimSpace(in.DataCode),
		UploadedByID: actor.UserID,
	}
	if err := newStores(s.db).datafiles.Create(ctx, f); err != nil {
		s.removeBlob(ctx, key)
		return nil, err
	}
	return f, nil
}

// List returns data files newest first; year zero lists every year.
func (s *DataFileService) List(ctx context.Context, year int) ([]models.DataFile, error) {
	return newStores(s.db).datafiles.List(ctx, year)
}

// Open returns the file row and a reader over its content. The caller closes the reader.
func (s *DataFileService) Open(ctx context.Context, id uint) (*models.DataFile, io.ReadCloser, error) {
	f, err := newStores(s.db).datafiles.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	_, body, err := s.store.Get(ctx, f.FilePath)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil, models.NewNotFoundError("DataFile content", id)
	}
	if err != nil {
		return nil, nil, models.NewInternalError(err)
	}
	return f, body, nil
}

// Delete removes the row and then the stored content. Only the uploader or an admin may delete.
func (s *DataFileService) Delete(ctx context.Context, actor models.Actor, id uint) error {
	st := newStores(s.db)
	f, err := st.datafiles.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.Owns(f.UploadedByID) {
		return models.NewUnauthorizedError("Only the uploader or an admin can delete this file")
	}
	if err := st.datafiles.Delete(ctx, id); err != nil {
		return err
	}
	s.removeBlob(ctx, f.FilePath)
	return nil
}

func (s *DataFileService) removeBlob(ctx context.Context, key string) {
	if _, err := s.store.Delete(ctx, key); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to remove data file blob", "key", key, "error", err)
	}
}
