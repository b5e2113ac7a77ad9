package acousticid

import (
	"errors"
	"time"

	"github.com/himanishpuri/AcousticID/pkg/models"
)

// OutcomeOK is the history outcome of a successful analysis. Failed analyses
// record their error kind instead.
const OutcomeOK = "ok"

var (
	ErrAnalysisNotFound = errors.New("analysis not found")
	ErrHistoryDisabled  = errors.New("analysis history is disabled")
)

type (
	Upload         = models.Upload
	TrackCandidate = models.TrackCandidate
	AnalysisRecord = models.AnalysisRecord
)

// nopStorage stands in when no history database is configured.
type nopStorage struct{}

func (nopStorage) RecordAnalysis(models.AnalysisRecord) error { return nil }

func (nopStorage) ListAnalyses(int) ([]models.AnalysisRecord, error) {
	return nil, ErrHistoryDisabled
}

func (nopStorage) GetAnalysis(string) (*models.AnalysisRecord, error) {
	return nil, ErrHistoryDisabled
}

func (nopStorage) DeleteAnalysis(string) error { return ErrHistoryDisabled }

func (nopStorage) PruneAnalyses(time.Time) (int64, error) { return 0, ErrHistoryDisabled }

func (nopStorage) Close() error { return nil }
