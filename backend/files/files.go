// Package files manages the lifecycle of user files across the object store
// and the metadata store. Every operation is scoped to the owner's email.
package files

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/PhilHem/secureone/backend/apperr"
	"github.com/PhilHem/secureone/backend/logger"
	"github.com/PhilHem/secureone/backend/models"
	"github.com/PhilHem/secureone/backend/objectstore"

	"github.com/google/uuid"
)

// MetadataStore persists file rows.
type MetadataStore interface {
	Insert(ctx context.Context, f *models.File) error
	// ListByOwner returns rows newest first and never nil.
	ListByOwner(ctx context.Context, owner string) ([]models.File, error)
	// Get returns apperr.ErrNotFound for an unknown id.
	Get(ctx context.Context, fileID string) (*models.File, error)
	// Delete removes the row if owner owns it, else apperr.ErrNotFound.
	Delete(ctx context.Context, owner, fileID string) error
}

// Summary is one row of a file listing.
type Summary struct {
	FileID       string    `json:"file_id"`
	OriginalName string    `json:"original_name"`
	FileSize     int64     `json:"file_size"`
	CreatedAt    time.Time `json:"created_at"`
	Icon         string    `json:"icon"`
}

// Totals aggregates a listing. It is derived, never stored.
type Totals struct {
	Files int   `json:"total_files"`
	Bytes int64 `json:"total_storage"`
}

// MB is the total in megabytes rounded to two decimals.
func (t Totals) MB() float64 {
	mb := float64(t.Bytes) / (1024 * 1024)
	return float64(int64(mb*100+0.5)) / 100
}

type Service struct {
	meta    MetadataStore
	blobs   objectstore.Store
	maxSize int64
	now     func() time.Time
	log     logger.Logger
}

func NewService(meta MetadataStore, blobs objectstore.Store, maxSize int64, log logger.Logger) *Service {
	return &Service{
		meta:    meta,
		blobs:   blobs,
		maxSize: maxSize,
		now:     time.Now,
		log:     log,
	}
}

// MaxSize is the upload limit in bytes.
func (s *Service) MaxSize() int64 {
	return s.maxSize
}

// Upload stores content as a new file owned by owner. The blob is written
// first; the row is inserted only after the blob write succeeded. If the
// insert fails the blob is removed again. size may be -1 when unknown.
func (s *Service) Upload(ctx context.Context, owner, originalName string, content io.Reader, size int64) (*models.File, error) {
	name := sanitizeFilename(originalName)
	if name == "" {
		return nil, apperr.Invalid("file", "No file selected")
	}
	if size > s.maxSize {
		return nil, apperr.Invalid("file", tooLarge(s.maxSize))
	}

	if size < 0 {
		buf, err := io.ReadAll(io.LimitReader(content, s.maxSize+1))
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		if int64(len(buf)) > s.maxSize {
			return nil, apperr.Invalid("file", tooLarge(s.maxSize))
		}
		content = bytes.NewReader(buf)
		size = int64(len(buf))
	}

	now := s.now().UTC()
	id := uuid.NewString()
	key := objectKey(owner, now, id)

	if err := s.blobs.Put(ctx, key, content, size); err != nil {
		s.log.Error(ctx, "blob write failed", "user_email", owner, "key", key, "error", err.Error())
		return nil, apperr.Blob("put", err)
	}

	f := &models.File{
		FileID:       id,
		OwnerEmail:   owner,
		OriginalName: name,
		CloudPath:    key,
		FileSize:     size,
		CreatedAt:    now,
	}
	if err := s.meta.Insert(ctx, f); err != nil {
		s.log.Error(ctx, "metadata insert failed", "user_email", owner, "file_id", id, "error", err.Error())
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
			s.log.Error(ctx, "orphaned blob left behind", "user_email", owner, "key", key, "error", derr.Error())
		}
		return nil, apperr.Metadata("insert", err)
	}

	s.log.Info(ctx, "file uploaded", "user_email", owner, "file_id", id, "size", size)
	return f, nil
}

// List returns the owner's files newest first. No files is an empty slice.
func (s *Service) List(ctx context.Context, owner string) ([]Summary, error) {
	rows, err := s.meta.ListByOwner(ctx, owner)
	if err != nil {
		s.log.Error(ctx, "list files failed", "user_email", owner, "error", err.Error())
		return nil, apperr.Metadata("list", err)
	}
	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, Summary{
			FileID:       r.FileID,
			OriginalName: r.OriginalName,
			FileSize:     r.FileSize,
			CreatedAt:    r.CreatedAt,
			Icon:         IconFor(r.OriginalName),
		})
	}
	return out, nil
}

// Summarize computes totals for a listing.
func Summarize(list []Summary) Totals {
	t := Totals{Files: len(list)}
	for _, f := range list {
		t.Bytes += f.FileSize
	}
	return t
}

// owned loads a row and checks it belongs to owner.
func (s *Service) owned(ctx context.Context, owner, fileID string) (*models.File, error) {
	f, err := s.meta.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Metadata("get", err)
	}
	if f.OwnerEmail != owner {
		s.log.Warn(ctx, "file access denied", "user_email", owner, "file_id", fileID)
		return nil, &apperr.AccessError{FileID: fileID}
	}
	return f, nil
}

// Download returns the blob and the stored original name.
func (s *Service) Download(ctx context.Context, owner, fileID string) ([]byte, string, error) {
	f, err := s.owned(ctx, owner, fileID)
	if err != nil {
		return nil, "", err
	}
	data, err := s.blobs.Get(ctx, f.CloudPath)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.log.Error(ctx, "row without blob", "user_email", owner, "file_id", fileID, "key", f.CloudPath)
			return nil, "", apperr.ErrNotFound
		}
		s.log.Error(ctx, "blob read failed", "user_email", owner, "file_id", fileID, "error", err.Error())
		return nil, "", apperr.Blob("get", err)
	}
	s.log.Info(ctx, "file downloaded", "user_email", owner, "file_id", fileID)
	return data, f.OriginalName, nil
}

// Delete removes the blob and then the row. If the blob cannot be removed the
// row stays so the delete can be retried.
func (s *Service) Delete(ctx context.Context, owner, fileID string) error {
	f, err := s.owned(ctx, owner, fileID)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, f.CloudPath); err != nil {
		s.log.Error(ctx, "blob delete failed", "user_email", owner, "file_id", fileID, "error", err.Error())
		return apperr.Blob("delete", err)
	}
	if err := s.meta.Delete(ctx, owner, fileID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// removed concurrently
			return nil
		}
		s.log.Error(ctx, "metadata delete failed", "user_email", owner, "file_id", fileID, "error", err.Error())
		return apperr.Metadata("delete", err)
	}
	s.log.Info(ctx, "file deleted", "user_email", owner, "file_id", fileID)
	return nil
}

// objectKey partitions blobs by a hash of the owner's email and upload date.
func objectKey(owner string, at time.Time, id string) string {
	sum := sha256.Sum256([]byte(owner))
	return fmt.Sprintf("users/%s/%04d/%02d/%02d/%s",
		hex.EncodeToString(sum[:8]), at.Year(), int(at.Month()), at.Day(), id)
}

// sanitizeFilename keeps only the base name, capped at 255 bytes. It returns
// "" when nothing usable is left.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(filepath.Base(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)

	if len(name) > 255 {
		ext := filepath.Ext(name)
		if len(ext) > 32 {
			ext = ""
		}
		name = strings.ToValidUTF8(name[:255-len(ext)], "") + ext
	}

	if name == "." || name == "/" {
		return ""
	}
	return name
}

func tooLarge(limit int64) string {
	return fmt.Sprintf("File is too large (max %d MB)", limit/(1024*1024))
}
