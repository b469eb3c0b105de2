package workflow

import (
	"context"
	"fmt"
	"os"

	"github.com/cordum/mediaflow/core/infra/secrets"
)

// Transcription is the text produced for one media file.
type Transcription struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Duration   float64   `json:"duration"`
	Language   string    `json:"language,omitempty"`
	FilePath   string    `json:"filePath,omitempty"`
	Segments   []Segment `json:"segments,omitempty"`
}

// Segment is a timed slice of a transcription, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// BatchStatus reports the progress of a batch job.
type BatchStatus struct {
	ID             string           `json:"id"`
	Status         string           `json:"status"`
	TotalFiles     int              `json:"totalFiles"`
	ProcessedFiles int              `json:"processedFiles"`
	FailedFiles    int              `json:"failedFiles"`
	Results        []map[string]any `json:"results,omitempty"`
}

// Terminal reports whether the batch has stopped changing.
func (b BatchStatus) Terminal() bool {
	switch b.Status {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}

// ExportResult describes a rendered artifact.
type ExportResult struct {
	FilePath string `json:"filePath"`
	Size     int64  `json:"size"`
	Format   string `json:"format"`
}

// DeliveryResult is the outcome of one outbound notification.
type DeliveryResult struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Transcriber interface {
	Transcribe(ctx context.Context, filePath string, options map[string]any) (Transcription, error)
}

type BatchProcessor interface {
	StartBatch(ctx context.Context, files []string, ownerID string, options map[string]any) (string, error)
	GetBatchStatus(ctx context.Context, batchID string) (BatchStatus, error)
}

type Exporter interface {
	Export(ctx context.Context, t Transcription, format string, destination map[string]any) (ExportResult, error)
}

type Notifier interface {
	Deliver(ctx context.Context, target NotificationTarget, eventType string, payload map[string]any) (DeliveryResult, error)
}

type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// Collaborators bundles the external services steps delegate to. Nil fields
// fail the step with ErrNotConfigured, except Secrets which defaults to the
// MEDIAFLOW_SECRET_* environment.
type Collaborators struct {
	Transcriber Transcriber
	Batch       BatchProcessor
	Exporter    Exporter
	Notifier    Notifier
	Files       FileReader
	Secrets     secrets.Lookup
}

func (c Collaborators) withDefaults() Collaborators {
	if c.Transcriber == nil {
		c.Transcriber = unconfigured{}
	}
	if c.Batch == nil {
		c.Batch = unconfigured{}
	}
	if c.Exporter == nil {
		c.Exporter = unconfigured{}
	}
	if c.Notifier == nil {
		c.Notifier = unconfigured{}
	}
	if c.Files == nil {
		c.Files = unconfigured{}
	}
	if c.Secrets == nil {
		c.Secrets = secrets.EnvLookup
	}
	return c
}

type unconfigured struct{}

func (unconfigured) Transcribe(context.Context, string, map[string]any) (Transcription, error) {
	return Transcription{}, fmt.Errorf("transcriber: %w", ErrNotConfigured)
}

func (unconfigured) StartBatch(context.Context, []string, string, map[string]any) (string, error) {
	return "", fmt.Errorf("batch processor: %w", ErrNotConfigured)
}

func (unconfigured) GetBatchStatus(context.Context, string) (BatchStatus, error) {
	return BatchStatus{}, fmt.Errorf("batch processor: %w", ErrNotConfigured)
}

func (unconfigured) Export(context.Context, Transcription, string, map[string]any) (ExportResult, error) {
	return ExportResult{}, fmt.Errorf("exporter: %w", ErrNotConfigured)
}

func (unconfigured) Deliver(context.Context, NotificationTarget, string, map[string]any) (DeliveryResult, error) {
	return DeliveryResult{}, fmt.Errorf("notifier: %w", ErrNotConfigured)
}

func (unconfigured) ReadFile(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("file reader: %w", ErrNotConfigured)
}

// LocalFiles reads content from the local filesystem.
type LocalFiles struct{}

func (LocalFiles) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// #nosec G304 -- paths come from operator-authored workflow definitions.
	return os.ReadFile(path)
}
