package upload

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"hookchat/internal/domain"
	"hookchat/internal/metrics"
)

// DefaultMaxFileBytes is the advertised per-file size limit (50 MB),
// enforced when a file is staged.
const DefaultMaxFileBytes = 50 * 1024 * 1024

// AcceptedMimeTypes is the advertised file-picker filter. It is not a hard
// gate: the remote webhook decides what it actually accepts.
var AcceptedMimeTypes = []string{
	"application/pdf",
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"image/png",
	"image/jpeg",
	"image/webp",
	"audio/mpeg",
	"audio/wav",
	"video/mp4",
	"video/webm",
}

var (
	ErrNotFound   = errors.New("upload item not found")
	ErrNotPending = errors.New("upload item is not pending")
	ErrTooLarge   = errors.New("file exceeds the size limit")
)

type item struct {
	meta     domain.UploadItem
	path     string // staged file on disk
	released bool
}

// Queue stages selected files on disk until they are submitted to the
// ingestion webhook as one batch. Order is selection order and is never
// changed. Each staged file is released exactly once, on removal or on
// Clear.
type Queue struct {
	mu       sync.Mutex
	items    []*item
	stageDir string
	maxBytes int64
	logger   *slog.Logger
}

type QueueConfig struct {
	StageDir     string
	MaxFileBytes int64 // DefaultMaxFileBytes when <= 0
	Logger       *slog.Logger
}

func NewQueue(cfg QueueConfig) (*Queue, error) {
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.StageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	return &Queue{
		stageDir: cfg.StageDir,
		maxBytes: cfg.MaxFileBytes,
		logger:   cfg.Logger,
	}, nil
}

// Add stages a new file and appends it to the end of the queue as pending.
func (q *Queue) Add(name, mimeType string, r io.Reader) (domain.UploadItem, error) {
	id := uuid.NewString()
	path := filepath.Join(q.stageDir, id)

	out, err := os.Create(path)
	if err != nil {
		return domain.UploadItem{}, fmt.Errorf("stage file: %w", err)
	}
	written, err := io.Copy(out, io.LimitReader(r, q.maxBytes+1))
	out.Close()
	if err != nil {
		os.Remove(path)
		return domain.UploadItem{}, fmt.Errorf("stage file: %w", err)
	}
	if written > q.maxBytes {
		os.Remove(path)
		return domain.UploadItem{}, ErrTooLarge
	}

	kind := Classify(mimeType)
	it := &item{
		meta: domain.UploadItem{
			ID:         id,
			Name:       name,
			MimeType:   mimeType,
			SizeBytes:  written,
			Status:     domain.UploadPending,
			Kind:       kind,
			HasPreview: kind == domain.KindImage,
		},
		path: path,
	}

	q.mu.Lock()
	q.items = append(q.items, it)
	n := len(q.items)
	q.mu.Unlock()

	metrics.StagedUploads.Set(int64(n))
	q.logger.Info("file staged", "id", id, "name", name, "size", written, "kind", kind)
	return it.meta, nil
}

// Remove drops a pending item and releases its staged file. Removing an
// item that already entered a submit batch is rejected.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	idx := -1
	for i, it := range q.items {
		if it.meta.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return ErrNotFound
	}
	it := q.items[idx]
	if it.meta.Status != domain.UploadPending {
		q.mu.Unlock()
		return ErrNotPending
	}
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	n := len(q.items)
	q.mu.Unlock()

	q.release(it)
	metrics.StagedUploads.Set(int64(n))
	return nil
}

// Items returns a snapshot of the queue in selection order.
func (q *Queue) Items() []domain.UploadItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.UploadItem, len(q.items))
	for i, it := range q.items {
		out[i] = it.meta
	}
	return out
}

// Pending reports how many items are waiting for submission.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, it := range q.items {
		if it.meta.Status == domain.UploadPending {
			n++
		}
	}
	return n
}

// BeginSubmit atomically moves every pending item to uploading and returns
// the batch in selection order.
func (q *Queue) BeginSubmit() []domain.UploadItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	var batch []domain.UploadItem
	for _, it := range q.items {
		if it.meta.Status == domain.UploadPending {
			it.meta.Status = domain.UploadUploading
			batch = append(batch, it.meta)
		}
	}
	return batch
}

// Complete resolves the current batch: every uploading item moves together
// to success or error. Partial per-file outcome is not modeled; the remote
// response is all-or-nothing for the batch.
func (q *Queue) Complete(success bool) {
	status := domain.UploadError
	if success {
		status = domain.UploadSuccess
	}
	q.mu.Lock()
	for _, it := range q.items {
		if it.meta.Status == domain.UploadUploading {
			it.meta.Status = status
		}
	}
	q.mu.Unlock()
}

// Open returns the staged content of an item for reading, with its current
// descriptor. The caller closes the reader.
func (q *Queue) Open(id string) (io.ReadCloser, domain.UploadItem, error) {
	q.mu.Lock()
	var found *item
	for _, it := range q.items {
		if it.meta.ID == id {
			found = it
			break
		}
	}
	q.mu.Unlock()

	if found == nil {
		return nil, domain.UploadItem{}, ErrNotFound
	}
	f, err := os.Open(found.path)
	if err != nil {
		return nil, domain.UploadItem{}, fmt.Errorf("open staged file: %w", err)
	}
	return f, found.meta, nil
}

// Clear empties the queue and releases every staged file.
func (q *Queue) Clear() {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, it := range items {
		q.release(it)
	}
	metrics.StagedUploads.Set(0)
}

// release removes an item's staged file. Items reach release through
// exactly one path (Remove or Clear), the released flag guards teardown.
func (q *Queue) release(it *item) {
	if it.released {
		return
	}
	it.released = true
	if err := os.Remove(it.path); err != nil && !os.IsNotExist(err) {
		q.logger.Warn("failed to remove staged file", "path", it.path, "err", err)
	}
}

// Classify maps a MIME type onto the coarse upload kinds the UI displays.
func Classify(mimeType string) domain.FileKind {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mt, "image/"):
		return domain.KindImage
	case strings.HasPrefix(mt, "video/"):
		return domain.KindVideo
	case strings.HasPrefix(mt, "audio/"):
		return domain.KindAudio
	case mt == "application/pdf",
		mt == "application/msword",
		mt == "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		strings.HasPrefix(mt, "text/"):
		return domain.KindDocument
	default:
		return domain.KindOther
	}
}
