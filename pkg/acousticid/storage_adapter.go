package acousticid

import (
	"errors"
	"time"

	"github.com/himanishpuri/AcousticID/pkg/acousticid/storage"
	"github.com/himanishpuri/AcousticID/pkg/models"
)

// storageAdapter adapts the storage.DBClient to implement the Storage interface.
type storageAdapter struct {
	db *storage.DBClient
}

// NewSQLiteStorage opens (or creates) an analysis history database.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		return nil, err
	}
	return &storageAdapter{db: db}, nil
}

func (s *storageAdapter) RecordAnalysis(rec models.AnalysisRecord) error {
	return s.db.RecordAnalysis(storage.Analysis{
		ID:              rec.ID,
		OriginalName:    rec.OriginalName,
		MimeType:        rec.MimeType,
		SizeBytes:       rec.SizeBytes,
		DurationSeconds: rec.DurationSeconds,
		Outcome:         rec.Outcome,
		Message:         rec.Message,
		CandidateCount:  rec.CandidateCount,
		TopTitle:        rec.TopTitle,
		TopArtist:       rec.TopArtist,
		CreatedAt:       rec.CreatedAt,
	})
}

func (s *storageAdapter) ListAnalyses(limit int) ([]models.AnalysisRecord, error) {
	rows, err := s.db.ListAnalyses(limit)
	if err != nil {
		return nil, err
	}

	out := make([]models.AnalysisRecord, len(rows))
	for i, row := range rows {
		out[i] = toRecord(row)
	}
	return out, nil
}

func (s *storageAdapter) GetAnalysis(id string) (*models.AnalysisRecord, error) {
	row, err := s.db.GetAnalysis(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := toRecord(*row)
	return &rec, nil
}

func (s *storageAdapter) DeleteAnalysis(id string) error {
	err := s.db.DeleteAnalysis(id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrAnalysisNotFound
	}
	return err
}

func (s *storageAdapter) PruneAnalyses(cutoff time.Time) (int64, error) {
	return s.db.PruneBefore(cutoff)
}

func (s *storageAdapter) Close() error {
	return s.db.Close()
}

func toRecord(a storage.Analysis) models.AnalysisRecord {
	return models.AnalysisRecord{
		ID:              a.ID,
		OriginalName:    a.OriginalName,
		MimeType:        a.MimeType,
		SizeBytes:       a.SizeBytes,
		DurationSeconds: a.DurationSeconds,
		Outcome:         a.Outcome,
		Message:         a.Message,
		CandidateCount:  a.CandidateCount,
		TopTitle:        a.TopTitle,
		TopArtist:       a.TopArtist,
		CreatedAt:       a.CreatedAt,
	}
}
