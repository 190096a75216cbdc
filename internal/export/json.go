// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/readerai/internal/model"
	"github.com/jeranaias/readerai/internal/storage"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports transcripts to JSON. Only IncludeSystem is honoured;
// everything else is always written.
type JSONExporter struct {
	options *Options
}

// jsonTranscript is the exported document.
type jsonTranscript struct {
	ItemID    string              `json:"itemId"`
	Title     string              `json:"title"`
	Summary   string              `json:"summary,omitempty"`
	KeyPoints []string            `json:"keyPoints,omitempty"`
	UpdatedAt time.Time           `json:"updatedAt"`
	Messages  []model.ChatMessage `json:"messages"`
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export converts a transcript to indented JSON.
func (e *JSONExporter) Export(t *storage.Transcript) ([]byte, error) {
	msgs, err := validate(t, e.options)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(jsonTranscript{
		ItemID:    t.ItemID,
		Title:     t.Title,
		Summary:   t.Summary,
		KeyPoints: t.KeyPoints,
		UpdatedAt: t.UpdatedAt,
		Messages:  msgs,
	}, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
