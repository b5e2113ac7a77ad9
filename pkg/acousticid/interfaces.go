package acousticid

import (
	"context"
	"encoding/json"
	"time"

	"github.com/himanishpuri/AcousticID/pkg/acousticid/lookup"
	"github.com/himanishpuri/AcousticID/pkg/models"
)

type Service interface {
	// Analyze identifies an uploaded file and returns normalized candidates
	// in the order the lookup service ranked them.
	Analyze(ctx context.Context, upload *models.Upload) ([]models.TrackCandidate, error)
	// AnalyzeRaw runs the same pipeline but returns the lookup service's
	// response body untouched.
	AnalyzeRaw(ctx context.Context, upload *models.Upload) (json.RawMessage, error)
	ListAnalyses(limit int) ([]models.AnalysisRecord, error)
	GetAnalysis(id string) (*models.AnalysisRecord, error)
	DeleteAnalysis(id string) error
	// PruneAnalyses deletes history older than cutoff.
	PruneAnalyses(cutoff time.Time) (int64, error)
	Close() error
}

type Fingerprinter interface {
	Generate(ctx context.Context, path string) (*models.FingerprintResult, error)
}

type LookupClient interface {
	Lookup(ctx context.Context, fp models.FingerprintResult) (*lookup.Response, error)
}

type Storage interface {
	RecordAnalysis(rec models.AnalysisRecord) error
	ListAnalyses(limit int) ([]models.AnalysisRecord, error)
	GetAnalysis(id string) (*models.AnalysisRecord, error)
	DeleteAnalysis(id string) error
	PruneAnalyses(cutoff time.Time) (int64, error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
