package lookup

import (
	"encoding/json"
	"fmt"
)

// Response is the decoded body of an AcoustID /v2/lookup call.
type Response struct {
	Status  string    `json:"status"`
	Results []Result  `json:"results"`
	Error   *APIError `json:"error,omitempty"`

	// Raw is the body exactly as the service sent it.
	Raw json.RawMessage `json:"-"`
}

// Result is one candidate match for the submitted fingerprint.
type Result struct {
	ID         string      `json:"id"`
	Score      *float64    `json:"score,omitempty"`
	Recordings []Recording `json:"recordings,omitempty"`
}

type Recording struct {
	ID       string    `json:"id"`
	Title    string    `json:"title,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Artists  []Artist  `json:"artists,omitempty"`
	Releases []Release `json:"releases,omitempty"`
}

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Release struct {
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	Country    string `json:"country,omitempty"`
	TrackCount int    `json:"track_count,omitempty"`
	Date       *Date  `json:"date,omitempty"`
}

type Date struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
	Day   int `json:"day,omitempty"`
}

// APIError is the error object AcoustID returns alongside status "error".
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("acoustid error(%d): %s", e.Code, e.Message)
}
