package binder

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// PageExt is the extension of per-page and merged documents.
const PageExt = "pdf"

// Job describes one article to bind. Field names follow the persisted job list.
type Job struct {
	SourceURL  string `json:"downloadUrl"`
	Selector   string `json:"imgClasses"`
	OutputRoot string `json:"pdfSaveRootPath,omitempty"`
	IsComplete bool   `json:"isDownloaded"`
	OutputPath string `json:"pdfSavePath"`

	// Extra holds keys this program does not interpret so a rewrite keeps them.
	Extra map[string]json.RawMessage `json:"-"`
}

// Root returns the job's output root, falling back to the collection default.
func (j Job) Root(fallback string) string {
	if strings.TrimSpace(j.OutputRoot) != "" {
		return j.OutputRoot
	}
	return fallback
}

// MarkComplete returns a copy of the job recording outputPath as its result.
func (j Job) MarkComplete(outputPath string) (Job, error) {
	if strings.TrimSpace(outputPath) == "" {
		return j, fmt.Errorf("complete job %s: output path is required", j.SourceURL)
	}
	j.IsComplete = true
	j.OutputPath = outputPath
	return j, nil
}

// JobCollection is the full persisted job list.
type JobCollection struct {
	OutputRoot string `json:"PdfSaveRootPath"`
	Jobs       []Job  `json:"DownloadSrcs"`

	Extra map[string]json.RawMessage `json:"-"`
}

// ResourceDescriptor identifies one candidate image in source order.
type ResourceDescriptor struct {
	URL     string
	Ordinal int
	Format  string
	Size    int
}

// FileName returns the raw resource filename, {ordinal}.{ext}.
func (d ResourceDescriptor) FileName(defaultExt string) string {
	ext := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d.Format)), ".")
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		ext = defaultExt
	}
	return fmt.Sprintf("%d.%s", d.Ordinal, ext)
}

// PageName returns the filename of the page document converted from this resource.
func (d ResourceDescriptor) PageName() string {
	return fmt.Sprintf("%d.%s", d.Ordinal, PageExt)
}

// FetchedResource is a resource whose bytes are on local disk.
type FetchedResource struct {
	Descriptor ResourceDescriptor
	LocalPath  string
}

// PageDocument is a single-page document produced from one resource.
type PageDocument struct {
	Ordinal   int
	LocalPath string
}

// MergeChunk is a contiguous run of pages merged into one intermediate document.
type MergeChunk struct {
	Index       int
	First, Last int
	Pages       []string
	OutputPath  string
}

// ParseOrdinal extracts the ordinal encoded in a file name such as "12.pdf".
func ParseOrdinal(path string) (int, bool) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	n, err := strconv.Atoi(stem)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ConvertOutcome reports what a conversion did.
type ConvertOutcome int

// Conversion outcomes. Only OutcomeConverted does real work; the others are no-ops.
const (
	OutcomeConverted ConvertOutcome = iota
	OutcomeExisting
	OutcomeNotImage
)

func (o ConvertOutcome) String() string {
	switch o {
	case OutcomeConverted:
		return "converted"
	case OutcomeExisting:
		return "existing"
	case OutcomeNotImage:
		return "not_image"
	default:
		return "unknown"
	}
}
