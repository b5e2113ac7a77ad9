package models

import (
	"io"
	"time"
)

// Upload is a file received by the transport layer, not yet validated or stored.
type Upload struct {
	FieldName string    // Multipart form field the file arrived under
	Filename  string    // Client-supplied file name
	MimeType  string    // Declared Content-Type of the part
	Body      io.Reader // File contents
}

// UploadHandle references an accepted upload in transient storage.
type UploadHandle struct {
	StoragePath  string
	OriginalName string
	SizeBytes    int64
	MimeType     string
}

// FingerprintResult is the output of the external fingerprinting tool.
type FingerprintResult struct {
	Fingerprint     string
	DurationSeconds float64
}

// StreamingLinks are search deep links, not verified matches.
type StreamingLinks struct {
	Spotify string `json:"spotify"`
	Apple   string `json:"apple"`
	YouTube string `json:"youtube"`
}

// TrackCandidate is one normalized identification result. Every field is
// always populated; missing source data is replaced by a fixed sentinel.
type TrackCandidate struct {
	ID             string         `json:"id"`
	Score          float64        `json:"score"`
	Title          string         `json:"title"`
	Artist         string         `json:"artist"`
	Album          string         `json:"album"`
	ReleaseDate    string         `json:"releaseDate"`
	StreamingLinks StreamingLinks `json:"streamingLinks"`
}

// AnalysisRecord is the persisted summary of one analysis request.
type AnalysisRecord struct {
	ID              string    `json:"id"`
	OriginalName    string    `json:"original_name"`
	MimeType        string    `json:"mime_type"`
	SizeBytes       int64     `json:"size_bytes"`
	DurationSeconds float64   `json:"duration_seconds"`
	Outcome         string    `json:"outcome"` // "ok" or the error kind
	Message         string    `json:"message,omitempty"`
	CandidateCount  int       `json:"candidate_count"`
	TopTitle        string    `json:"top_title,omitempty"`
	TopArtist       string    `json:"top_artist,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
