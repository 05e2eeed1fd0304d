package storage

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdesk/internal/config"
)

func TestSaveGetRemove(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	rel, n, err := store.Save(BucketCompletions, "01X_report.pdf", strings.NewReader("evidence"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("evidence")), n)

	rc, err := store.Get(rel)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "evidence", string(data))

	require.NoError(t, store.Remove(rel))
	_, err = store.Get(rel)
	assert.Error(t, err, "removed blob must be gone")
}

func TestSaveSanitizesNames(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	rel, _, err := store.Save(BucketCompletions, "../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	assert.NotContains(t, rel, "..", "path traversal must be stripped")
	rc, err := store.Get(rel)
	require.NoError(t, err)
	rc.Close()
}

func TestCategorize(t *testing.T) {
	assert.Equal(t, "screenshot", Categorize("image/png"))
	assert.Equal(t, "screenshot", Categorize("image/webp"))
	assert.Equal(t, "report", Categorize("application/pdf"))
	assert.Equal(t, "video", Categorize("video/mp4"))
	assert.Equal(t, "other", Categorize("application/zip"))
	assert.Equal(t, "other", Categorize("text/plain"))
}

func TestCheckCompletionFilePerTypeCaps(t *testing.T) {
	cfg := config.Default().Uploads

	assert.NoError(t, CheckCompletionFile(cfg, "a.png", "image/png", cfg.MaxImageBytes))
	assert.Error(t, CheckCompletionFile(cfg, "a.png", "image/png", cfg.MaxImageBytes+1))

	assert.NoError(t, CheckCompletionFile(cfg, "a.pdf", "application/pdf", cfg.MaxPDFBytes))
	assert.Error(t, CheckCompletionFile(cfg, "a.pdf", "application/pdf", cfg.MaxPDFBytes+1))

	assert.NoError(t, CheckCompletionFile(cfg, "a.mp4", "video/mp4", cfg.MaxVideoBytes))
	assert.Error(t, CheckCompletionFile(cfg, "a.mp4", "video/mp4", cfg.MaxVideoBytes+1))

	err := CheckCompletionFile(cfg, "a.exe", "application/x-msdownload", 1)
	var fe FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "a.exe", fe.File)
}

func TestCheckCompletionBatch(t *testing.T) {
	cfg := config.Default().Uploads

	assert.NoError(t, CheckCompletionBatch(cfg, cfg.MaxFilesPerCompletion-1, 0, 1))
	assert.Error(t, CheckCompletionBatch(cfg, cfg.MaxFilesPerCompletion, 0, 1), "file count cap")

	assert.NoError(t, CheckCompletionBatch(cfg, 0, cfg.MaxAggregateBytes-10, 10))
	assert.Error(t, CheckCompletionBatch(cfg, 0, cfg.MaxAggregateBytes-10, 11), "aggregate cap")
}

func TestCheckProposalFile(t *testing.T) {
	cfg := config.Default().Uploads
	assert.NoError(t, CheckProposalFile(cfg, "pitch.pdf", "application/pdf", cfg.MaxProposalFileBytes))
	assert.Error(t, CheckProposalFile(cfg, "pitch.pdf", "application/pdf", cfg.MaxProposalFileBytes+1))
	assert.Error(t, CheckProposalFile(cfg, "pitch.exe", "application/x-msdownload", 1))
}
