// Package storage is a local blob store for completion and proposal
// attachments, laid out as <workspace>/.taskdesk/blobs/<bucket>/<name>.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"taskdesk/internal/config"
)

const (
	BucketCompletions = "task-completions"
	BucketProposals   = "proposals"
)

type Store struct {
	Root string
}

// Open returns a store rooted under the workspace.
func Open(workspace string) (Store, error) {
	if workspace == "" {
		workspace = "."
	}
	root := filepath.Join(workspace, ".taskdesk", "blobs")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return Store{}, err
	}
	return Store{Root: root}, nil
}

// Save streams the blob to disk and returns its bucket-relative path.
func (s Store) Save(bucket, name string, r io.Reader) (string, int64, error) {
	rel := filepath.Join(bucket, sanitize(name))
	full := filepath.Join(s.Root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", 0, err
	}
	f, err := os.Create(full)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(full)
		return "", 0, err
	}
	return rel, n, nil
}

// Get opens a previously saved blob by its bucket-relative path.
func (s Store) Get(rel string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.Root, filepath.Clean(rel)))
}

// Remove deletes a blob. Missing blobs are not an error.
func (s Store) Remove(rel string) error {
	err := os.Remove(filepath.Join(s.Root, filepath.Clean(rel)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func sanitize(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// FileError reports a rejected upload.
type FileError struct {
	File   string
	Reason string
}

func (e FileError) Error() string {
	return fmt.Sprintf("file %s rejected: %s", e.File, e.Reason)
}

var allowedTypes = map[string]bool{
	"image/png":          true,
	"image/jpeg":         true,
	"image/gif":          true,
	"image/webp":         true,
	"application/pdf":    true,
	"video/mp4":          true,
	"video/webm":         true,
	"video/quicktime":    true,
	"application/zip":    true,
	"text/plain":         true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
}

// Categorize derives the file category from its MIME type prefix.
func Categorize(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "screenshot"
	case mime == "application/pdf":
		return "report"
	case strings.HasPrefix(mime, "video/"):
		return "video"
	default:
		return "other"
	}
}

// CheckCompletionFile validates one upload against the MIME allow-list and
// per-type size caps.
func CheckCompletionFile(cfg config.UploadConfig, name, mime string, size int64) error {
	if !allowedTypes[mime] {
		return FileError{File: name, Reason: fmt.Sprintf("type %s not allowed", mime)}
	}
	var limit int64
	switch {
	case strings.HasPrefix(mime, "image/"):
		limit = cfg.MaxImageBytes
	case mime == "application/pdf":
		limit = cfg.MaxPDFBytes
	case strings.HasPrefix(mime, "video/"):
		limit = cfg.MaxVideoBytes
	default:
		limit = cfg.MaxPDFBytes
	}
	if size > limit {
		return FileError{File: name, Reason: fmt.Sprintf("size %d exceeds %d byte limit for %s", size, limit, mime)}
	}
	return nil
}

// CheckCompletionBatch validates file count and aggregate size after adding
// one more file of the given size.
func CheckCompletionBatch(cfg config.UploadConfig, existing int, aggregate, adding int64) error {
	if existing+1 > cfg.MaxFilesPerCompletion {
		return FileError{Reason: fmt.Sprintf("at most %d files per completion", cfg.MaxFilesPerCompletion)}
	}
	if aggregate+adding > cfg.MaxAggregateBytes {
		return FileError{Reason: fmt.Sprintf("aggregate size exceeds %d bytes", cfg.MaxAggregateBytes)}
	}
	return nil
}

// CheckProposalFile validates a proposal attachment.
func CheckProposalFile(cfg config.UploadConfig, name, mime string, size int64) error {
	if !allowedTypes[mime] {
		return FileError{File: name, Reason: fmt.Sprintf("type %s not allowed", mime)}
	}
	if size > cfg.MaxProposalFileBytes {
		return FileError{File: name, Reason: fmt.Sprintf("size %d exceeds %d byte limit", size, cfg.MaxProposalFileBytes)}
	}
	return nil
}
