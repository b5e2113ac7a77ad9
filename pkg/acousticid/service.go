package acousticid

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/himanishpuri/AcousticID/pkg/acousticid/fingerprint"
	"github.com/himanishpuri/AcousticID/pkg/acousticid/intake"
	"github.com/himanishpuri/AcousticID/pkg/acousticid/lookup"
	"github.com/himanishpuri/AcousticID/pkg/apperr"
	"github.com/himanishpuri/AcousticID/pkg/logger"
	"github.com/himanishpuri/AcousticID/pkg/metrics"
	"github.com/himanishpuri/AcousticID/pkg/models"
)

// acousticService is the default implementation of the Service interface.
type acousticService struct {
	intake        *intake.Intake
	fingerprinter Fingerprinter
	lookup        LookupClient
	storage       Storage
	log           Logger
	config        *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	if cfg.Fingerprinter == nil {
		cfg.Fingerprinter = fingerprint.NewGenerator(cfg.FpcalcPath, cfg.FingerprintTimeout)
	}

	if cfg.LookupClient == nil {
		client, err := lookup.NewClient(cfg.APIKey,
			lookup.WithBaseURL(cfg.LookupURL),
			lookup.WithTimeout(cfg.LookupTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create lookup client: %w", err)
		}
		cfg.LookupClient = client
	}

	var stor Storage
	switch {
	case cfg.Storage != nil:
		stor = cfg.Storage
	case cfg.DBPath != "":
		var err error
		stor, err = NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	default:
		stor = nopStorage{}
	}

	return &acousticService{
		intake:        intake.New(cfg.UploadDir, cfg.MaxUploadBytes),
		fingerprinter: cfg.Fingerprinter,
		lookup:        cfg.LookupClient,
		storage:       stor,
		log:           cfg.Logger,
		config:        cfg,
	}, nil
}

func (s *acousticService) Analyze(ctx context.Context, upload *models.Upload) ([]models.TrackCandidate, error) {
	var candidates []models.TrackCandidate
	err := s.run(ctx, upload, func(resp *lookup.Response) []models.TrackCandidate {
		candidates = Normalize(resp.Results)
		return candidates
	})
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

func (s *acousticService) AnalyzeRaw(ctx context.Context, upload *models.Upload) (json.RawMessage, error) {
	var raw json.RawMessage
	err := s.run(ctx, upload, func(resp *lookup.Response) []models.TrackCandidate {
		raw = resp.Raw
		return Normalize(resp.Results)
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// run drives one upload through intake, fingerprinting and lookup. The
// transient file is removed before run returns, whatever the outcome. A
// client disconnect does not abort the pipeline; the step timeouts bound it.
func (s *acousticService) run(ctx context.Context, upload *models.Upload, finish func(*lookup.Response) []models.TrackCandidate) (err error) {
	start := time.Now()
	id := uuid.NewString()
	log := scopeLogger(s.log, "[req="+id[:8]+"]")
	ctx = context.WithoutCancel(ctx)

	rec := models.AnalysisRecord{ID: id, CreatedAt: start.UTC()}
	if upload != nil {
		rec.OriginalName = upload.Filename
		rec.MimeType = upload.MimeType
	}
	defer func() {
		s.record(log, &rec, err)
		log.Debugf("Analysis finished in %s", time.Since(start).Round(time.Millisecond))
	}()

	intakeStart := time.Now()
	handle, err := s.intake.Store(upload)
	metrics.ObserveStep(metrics.StepIntake, intakeStart)
	if err != nil {
		log.Warnf("Rejected upload: %v", err)
		return err
	}
	defer s.cleanup(log, handle)

	rec.SizeBytes = handle.SizeBytes
	log.Infof("Generating fingerprint for: %s (%s)", handle.OriginalName, humanize.IBytes(uint64(handle.SizeBytes)))
	s.probe(log, handle)

	fpStart := time.Now()
	fp, err := s.fingerprinter.Generate(ctx, handle.StoragePath)
	metrics.ObserveStep(metrics.StepFingerprint, fpStart)
	if err != nil {
		log.Errorf("Fingerprint generation failed: %v", err)
		return classify(err, apperr.FingerprintError, "Could not generate audio fingerprint")
	}
	rec.DurationSeconds = fp.DurationSeconds

	log.Infof("Querying AcoustID with duration: %.2fs", fp.DurationSeconds)
	lookupStart := time.Now()
	resp, err := s.lookup.Lookup(ctx, *fp)
	metrics.ObserveStep(metrics.StepLookup, lookupStart)
	if err != nil {
		log.Errorf("AcoustID lookup failed: %v", err)
		return classify(err, apperr.LookupFailed, "Identification service unavailable")
	}
	if resp == nil {
		log.Errorf("AcoustID lookup returned no response")
		return apperr.New(apperr.LookupFailed, "Identification service unavailable")
	}

	candidates := finish(resp)
	rec.CandidateCount = len(candidates)
	if len(candidates) > 0 {
		rec.TopTitle = candidates[0].Title
		rec.TopArtist = candidates[0].Artist
	}
	metrics.CandidatesReturned.Observe(float64(len(candidates)))
	log.Infof("AcoustID returned %d result(s), %d candidate(s)", len(resp.Results), len(candidates))
	return nil
}

// classify makes sure a step failure carries that step's kind, even when an
// injected component returned an unclassified error.
func classify(err error, kind apperr.Kind, message string) error {
	if e, ok := apperr.As(err); ok && e.Kind == kind {
		return err
	}
	return apperr.Wrap(kind, message, err)
}

func (s *acousticService) cleanup(log Logger, h *models.UploadHandle) {
	if err := s.intake.Remove(h); err != nil {
		log.Errorf("Failed to remove transient file %s: %v", h.StoragePath, err)
		return
	}
	log.Debugf("Removed transient file %s", h.StoragePath)
}

// probe logs the WAV header of .wav uploads. It never fails the analysis.
func (s *acousticService) probe(log Logger, h *models.UploadHandle) {
	if !strings.EqualFold(filepath.Ext(h.StoragePath), ".wav") {
		return
	}
	info, err := intake.ProbeWAV(h.StoragePath)
	if err != nil {
		log.Debugf("Unreadable WAV header: %v", err)
		return
	}
	log.Debugf("WAV input: %d Hz, %d channel(s), %d-bit, %s",
		info.SampleRate, info.Channels, info.BitDepth, info.Duration.Round(time.Millisecond))
}

func (s *acousticService) record(log Logger, rec *models.AnalysisRecord, err error) {
	if err != nil {
		rec.Outcome = apperr.KindOf(err).String()
		rec.Message = apperr.MessageOf(err)
	} else {
		rec.Outcome = OutcomeOK
	}
	metrics.AnalysesTotal.WithLabelValues(rec.Outcome).Inc()

	if serr := s.storage.RecordAnalysis(*rec); serr != nil {
		log.Warnf("Failed to record analysis history: %v", serr)
	}
}

func (s *acousticService) ListAnalyses(limit int) ([]models.AnalysisRecord, error) {
	return s.storage.ListAnalyses(limit)
}

func (s *acousticService) GetAnalysis(id string) (*models.AnalysisRecord, error) {
	return s.storage.GetAnalysis(id)
}

func (s *acousticService) DeleteAnalysis(id string) error {
	return s.storage.DeleteAnalysis(id)
}

func (s *acousticService) PruneAnalyses(cutoff time.Time) (int64, error) {
	return s.storage.PruneAnalyses(cutoff)
}

func (s *acousticService) Close() error {
	return s.storage.Close()
}

// scopeLogger tags every line with prefix. Loggers that know how to carry a
// prefix themselves are asked to; anything else is wrapped.
func scopeLogger(log Logger, prefix string) Logger {
	if l, ok := log.(*logger.Logger); ok {
		return l.WithPrefix(prefix)
	}
	return prefixLogger{Logger: log, prefix: prefix + " "}
}

type prefixLogger struct {
	Logger
	prefix string
}

func (p prefixLogger) Infof(format string, args ...any)  { p.Logger.Infof(p.prefix+format, args...) }
func (p prefixLogger) Warnf(format string, args ...any)  { p.Logger.Warnf(p.prefix+format, args...) }
func (p prefixLogger) Errorf(format string, args ...any) { p.Logger.Errorf(p.prefix+format, args...) }
func (p prefixLogger) Debugf(format string, args ...any) { p.Logger.Debugf(p.prefix+format, args...) }
