package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtransfer/dss/internal/domain/analyzer"
	"github.com/medtransfer/dss/internal/domain/ranking"
	"github.com/medtransfer/dss/internal/domain/synthetic"
)

// ErrInvalidRequest marks caller errors; handlers map it to 400.
var ErrInvalidRequest = errors.New("invalid request")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

type analyzerKey struct {
	n    int
	seed uint64
}

func (k analyzerKey) String() string {
	return fmt.Sprintf("n_transfers=%d,seed_t=%d", k.n, k.seed)
}

// analyzerEntry is a cache slot. ready is closed once a and err are set.
type analyzerEntry struct {
	ready chan struct{}
	a     *analyzer.Analyzer
	err   error
}

// Service answers transfer requests. Every request is computed from freshly
// generated synthetic data; only fitted analyzers are cached, keyed by the
// transfer table that trained them.
type Service struct {
	logger    zerolog.Logger
	defaults  Params
	cacheSize int
	fit       func(cases []synthetic.TransferCase) (*analyzer.Analyzer, error)

	mu        sync.Mutex
	analyzers map[analyzerKey]*analyzerEntry
	order     []analyzerKey
}

func NewService(logger zerolog.Logger, defaults Params, cacheSize int) *Service {
	if cacheSize < 1 {
		cacheSize = 1
	}
	return &Service{
		logger:    logger.With().Str("component", "transfer").Logger(),
		defaults:  defaults,
		cacheSize: cacheSize,
		fit:       fitAnalyzer,
		analyzers: make(map[analyzerKey]*analyzerEntry),
	}
}

func fitAnalyzer(cases []synthetic.TransferCase) (*analyzer.Analyzer, error) {
	a := analyzer.New()
	if err := a.Fit(cases); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) resolve(p Params) (Params, error) {
	p = p.WithDefaults(s.defaults)
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return p, nil
}

// Hospitals returns the synthetic hospital table for p.
func (s *Service) Hospitals(ctx context.Context, p Params) ([]synthetic.Hospital, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	return synthetic.GenerateHospitals(p.NHospitals, p.SeedH), nil
}

// Transfers returns the synthetic training table for p.
func (s *Service) Transfers(ctx context.Context, p Params) ([]synthetic.TransferCase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	return synthetic.GenerateTransfers(p.NTransfers, p.SeedT), nil
}

// Analyzer returns a fitted analyzer for p's transfer table, building and
// caching it on first use. The cache lock is not held while fitting, so
// requests for other keys are not blocked; concurrent requests for the same
// key wait for a single fit.
func (s *Service) Analyzer(ctx context.Context, p Params) (*analyzer.Analyzer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	key := analyzerKey{n: p.NTransfers, seed: p.SeedT}

	s.mu.Lock()
	e, ok := s.analyzers[key]
	if !ok {
		e = &analyzerEntry{ready: make(chan struct{})}
		if len(s.order) >= s.cacheSize {
			evict := s.order[0]
			s.order = s.order[1:]
			delete(s.analyzers, evict)
			s.logger.Debug().Stringer("key", evict).Msg("analyzer evicted")
		}
		s.analyzers[key] = e
		s.order = append(s.order, key)
	}
	s.mu.Unlock()

	if ok {
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		s.logger.Debug().Stringer("key", key).Msg("analyzer cache hit")
		return e.a, nil
	}

	e.a, e.err = s.fit(synthetic.GenerateTransfers(key.n, key.seed))
	if e.err != nil {
		e.err = fmt.Errorf("fit analyzer: %w", e.err)
		s.forget(key, e)
	} else {
		specIters, sevIters := e.a.SolverIterations()
		s.logger.Debug().
			Stringer("key", key).
			Int("vocabulary", len(e.a.Vocabulary())).
			Int("specialty_iterations", specIters).
			Int("severity_iterations", sevIters).
			Msg("analyzer fitted")
	}
	close(e.ready)
	return e.a, e.err
}

// forget drops a failed entry so the next request retries the fit.
func (s *Service) forget(key analyzerKey, e *analyzerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analyzers[key] != e {
		return
	}
	delete(s.analyzers, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Analyze predicts specialty and severity for a report.
func (s *Service) Analyze(ctx context.Context, p Params, report string) (*analyzer.Prediction, error) {
	if strings.TrimSpace(report) == "" {
		return nil, invalid("report is required")
	}
	a, err := s.Analyzer(ctx, p)
	if err != nil {
		return nil, err
	}
	return a.Predict(report)
}

// Rank scores p's hospitals for an explicit specialty and severity.
func (s *Service) Rank(ctx context.Context, p Params, specialty, severity string) ([]ranking.RankedResult, error) {
	if specialty == "" {
		return nil, invalid("specialty is required")
	}
	if !synthetic.IsSeverity(severity) {
		return nil, invalid("severity must be one of %s, got %q", strings.Join(synthetic.SeverityLevels, ", "), severity)
	}
	p, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	hospitals, err := s.Hospitals(ctx, p)
	if err != nil {
		return nil, err
	}
	return ranking.RankHospitals(hospitals, specialty, severity, p.TopK), nil
}

// Recommend analyzes a report and ranks hospitals for the predicted needs.
func (s *Service) Recommend(ctx context.Context, p Params, report string) (*Recommendation, error) {
	p, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	pred, err := s.Analyze(ctx, p, report)
	if err != nil {
		return nil, err
	}
	ranked, err := s.Rank(ctx, p, pred.Specialty, pred.Severity)
	if err != nil {
		return nil, err
	}

	rec := &Recommendation{
		ID:             uuid.New(),
		Params:         p,
		Prediction:     pred,
		TopSpecialties: pred.TopSpecialties(explainTopN),
		TopSeverities:  pred.TopSeverities(0),
		Ranked:         ranked,
	}
	if len(ranked) > 0 {
		rec.Best = ranked[0]
		rec.Reasons = ranking.ReasonItems(rec.Best.Reason)
		rec.NoMatch = !rec.Best.Matched()
	} else {
		rec.NoMatch = true
	}

	s.logger.Info().
		Str("recommendation_id", rec.ID.String()).
		Str("specialty", pred.Specialty).
		Str("severity", pred.Severity).
		Str("hospital", rec.Best.Name).
		Float64("score", rec.Best.Score).
		Bool("no_match", rec.NoMatch).
		Msg("transfer recommended")
	return rec, nil
}
