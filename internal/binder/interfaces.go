package binder

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves a remote resource's bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// PageExtractor finds the container name and candidate resources in markup.
// It returns ErrNoContainerName when no name can be derived; zero matches is not an error.
type PageExtractor interface {
	Extract(markup []byte, selector string) (string, []ResourceDescriptor, error)
}

// ResourceSink stores fetched resources under a job's destination directory.
type ResourceSink interface {
	Exists(ctx context.Context, name string) (bool, error)
	PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error)
	Path(name string) string
}

// JobStore loads and durably checkpoints the job list.
type JobStore interface {
	Load(ctx context.Context) (JobCollection, error)
	UpdateJob(ctx context.Context, index int, job Job) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Ledger records completed documents.
type Ledger interface {
	RecordDocument(ctx context.Context, record DocumentRecord) error
}

// Hasher computes digests of produced documents.
type Hasher interface {
	HashFile(path string) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// DocumentRecord describes one completed job's output.
type DocumentRecord struct {
	RunID       string    `json:"run_id"`
	SourceURL   string    `json:"source_url"`
	Container   string    `json:"container"`
	OutputPath  string    `json:"output_path"`
	MirrorURI   string    `json:"mirror_uri,omitempty"`
	Pages       int       `json:"pages"`
	SHA256      string    `json:"sha256"`
	CompletedAt time.Time `json:"completed_at"`
}
