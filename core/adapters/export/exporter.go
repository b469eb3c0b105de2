// Package export renders transcriptions into artifacts.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/cordum/mediaflow/core/infra/artifacts"
	"github.com/cordum/mediaflow/core/infra/logging"
	"github.com/cordum/mediaflow/core/workflow"
)

// Supported export formats.
const (
	FormatTXT  = "txt"
	FormatJSON = "json"
	FormatSRT  = "srt"
)

var contentTypes = map[string]string{
	FormatTXT:  "text/plain; charset=utf-8",
	FormatJSON: "application/json",
	FormatSRT:  "application/x-subrip",
}

// Exporter writes rendered transcriptions to an artifact store and returns
// the artifact pointer as the export path.
type Exporter struct {
	store     artifacts.Store
	retention artifacts.RetentionClass
}

func NewExporter(store artifacts.Store) *Exporter {
	return &Exporter{store: store, retention: artifacts.RetentionStandard}
}

// WithRetention sets the default retention class for exported artifacts.
func (e *Exporter) WithRetention(r artifacts.RetentionClass) *Exporter {
	if r != "" {
		e.retention = r
	}
	return e
}

// Export renders t as format. destination may carry "name", "retention" and
// string "labels".
func (e *Exporter) Export(ctx context.Context, t workflow.Transcription, format string, destination map[string]any) (workflow.ExportResult, error) {
	if e.store == nil {
		return workflow.ExportResult{}, fmt.Errorf("export: %w", workflow.ErrNotConfigured)
	}
	format = strings.ToLower(strings.TrimSpace(format))
	content, err := Render(t, format)
	if err != nil {
		return workflow.ExportResult{}, err
	}
	meta := artifacts.Metadata{
		Name:        artifactName(t, format, destination),
		ContentType: contentTypes[format],
		Retention:   e.retention,
		Labels:      map[string]string{"format": format},
	}
	if t.ID != "" {
		meta.Labels["transcription_id"] = t.ID
	}
	if r, ok := destination["retention"].(string); ok && r != "" {
		meta.Retention = artifacts.RetentionClass(r)
	}
	if labels, ok := destination["labels"].(map[string]any); ok {
		for k, v := range labels {
			if s, ok := v.(string); ok {
				meta.Labels[k] = s
			}
		}
	}
	ptr, err := e.store.Put(ctx, content, meta)
	if err != nil {
		return workflow.ExportResult{}, fmt.Errorf("store export: %w", err)
	}
	logging.Info("export", "transcription exported", "transcription_id", t.ID, "format", format, "bytes", len(content), "artifact", ptr)
	return workflow.ExportResult{FilePath: ptr, Size: int64(len(content)), Format: format}, nil
}

func artifactName(t workflow.Transcription, format string, destination map[string]any) string {
	if name, ok := destination["name"].(string); ok && name != "" {
		return name
	}
	base := t.ID
	if base == "" {
		base = "transcription"
	}
	return base + "." + format
}

// Render produces the bytes of t in the given format.
func Render(t workflow.Transcription, format string) ([]byte, error) {
	switch format {
	case FormatTXT:
		text := strings.TrimSpace(t.Text)
		if text == "" && len(t.Segments) > 0 {
			lines := make([]string, 0, len(t.Segments))
			for _, seg := range t.Segments {
				lines = append(lines, strings.TrimSpace(seg.Text))
			}
			text = strings.Join(lines, "\n")
		}
		return []byte(text + "\n"), nil
	case FormatJSON:
		return json.MarshalIndent(t, "", "  ")
	case FormatSRT:
		return renderSRT(t), nil
	default:
		return nil, fmt.Errorf("export: unsupported format %q", format)
	}
}

func renderSRT(t workflow.Transcription) []byte {
	segments := t.Segments
	if len(segments) == 0 {
		segments = []workflow.Segment{{Start: 0, End: t.Duration, Text: t.Text}}
	}
	var b strings.Builder
	for i, seg := range segments {
		end := seg.End
		if end < seg.Start {
			end = seg.Start
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTimestamp(seg.Start), srtTimestamp(end), strings.TrimSpace(seg.Text))
	}
	return []byte(b.String())
}

// srtTimestamp formats seconds as HH:MM:SS,mmm.
func srtTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
