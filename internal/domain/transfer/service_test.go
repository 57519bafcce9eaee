package transfer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/medtransfer/dss/internal/domain/analyzer"
	"github.com/medtransfer/dss/internal/domain/ranking"
	"github.com/medtransfer/dss/internal/domain/synthetic"
)

const cardiologyReport = "Patient has chest pain and shortness of breath. Suspected myocardial infarction. Needs Cardiology."

func newTestService() *Service {
	return NewService(zerolog.Nop(), DefaultParams(), 4)
}

func TestParams_WithDefaults(t *testing.T) {
	p := Params{SeedH: 42}.WithDefaults(DefaultParams())
	if p.SeedH != 42 {
		t.Errorf("expected explicit seed_h to survive, got %d", p.SeedH)
	}
	if p.NHospitals != 8 || p.NTransfers != 120 || p.SeedT != 13 || p.TopK != 5 {
		t.Errorf("unexpected defaults: %+v", p)
	}
}

func TestParams_Validate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("defaults must be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Params)
		field  string
	}{
		{"too few hospitals", func(p *Params) { p.NHospitals = 4 }, "n_hospitals"},
		{"too many hospitals", func(p *Params) { p.NHospitals = 16 }, "n_hospitals"},
		{"too few transfers", func(p *Params) { p.NTransfers = 49 }, "n_transfers"},
		{"too many transfers", func(p *Params) { p.NTransfers = 401 }, "n_transfers"},
		{"seed_h too large", func(p *Params) { p.SeedH = 10000 }, "seed_h"},
		{"seed_t zero", func(p *Params) { p.SeedT = 0 }, "seed_t"},
		{"top_k zero", func(p *Params) { p.TopK = 0 }, "top_k"},
		{"top_k too large", func(p *Params) { p.TopK = 16 }, "top_k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error to mention %s, got %v", tt.field, err)
			}
		})
	}
}

func TestService_Hospitals(t *testing.T) {
	svc := newTestService()
	hs, err := svc.Hospitals(context.Background(), Params{NHospitals: 12, SeedH: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hs) != 12 {
		t.Errorf("expected 12 hospitals, got %d", len(hs))
	}

	_, err = svc.Hospitals(context.Background(), Params{NHospitals: 99})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestService_CanceledContext(t *testing.T) {
	svc := newTestService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Transfers(ctx, Params{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestService_AnalyzerCache(t *testing.T) {
	svc := NewService(zerolog.Nop(), DefaultParams(), 2)
	ctx := context.Background()

	a1, err := svc.Analyzer(ctx, Params{SeedT: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a2, _ := svc.Analyzer(ctx, Params{SeedT: 1})
	if a1 != a2 {
		t.Error("expected cached analyzer for identical key")
	}

	// Hospital parameters do not affect the analyzer key.
	a3, _ := svc.Analyzer(ctx, Params{SeedT: 1, SeedH: 99, NHospitals: 5})
	if a3 != a1 {
		t.Error("expected hospital params to share the analyzer")
	}

	svc.Analyzer(ctx, Params{SeedT: 2})
	svc.Analyzer(ctx, Params{SeedT: 3})
	if len(svc.analyzers) != 2 {
		t.Errorf("expected cache bounded at 2, got %d", len(svc.analyzers))
	}
	a4, _ := svc.Analyzer(ctx, Params{SeedT: 1})
	if a4 == a1 {
		t.Error("expected oldest analyzer to have been evicted")
	}
}

func TestService_AnalyzerConcurrent(t *testing.T) {
	svc := newTestService()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Analyze(context.Background(), Params{}, cardiologyReport); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	if len(svc.analyzers) != 1 {
		t.Errorf("expected a single cached analyzer, got %d", len(svc.analyzers))
	}
}

// blockingFit stalls fits of the transfer table with the given seed until
// release is closed. started is closed when that fit begins.
func blockingFit(seed uint64, started, release chan struct{}) func([]synthetic.TransferCase) (*analyzer.Analyzer, error) {
	blocked := synthetic.GenerateTransfers(120, seed)
	return func(cases []synthetic.TransferCase) (*analyzer.Analyzer, error) {
		if len(cases) > 0 && cases[0] == blocked[0] && cases[len(cases)-1] == blocked[len(blocked)-1] {
			close(started)
			<-release
		}
		return fitAnalyzer(cases)
	}
}

func TestService_AnalyzerHitNotBlockedByFit(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	warm, err := svc.Analyzer(ctx, Params{SeedT: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	started, release := make(chan struct{}), make(chan struct{})
	svc.fit = blockingFit(2, started, release)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Analyzer(ctx, Params{SeedT: 2})
		done <- err
	}()
	<-started

	hit := make(chan *analyzer.Analyzer, 1)
	go func() {
		a, _ := svc.Analyzer(ctx, Params{SeedT: 1})
		hit <- a
	}()
	select {
	case a := <-hit:
		if a != warm {
			t.Error("expected the cached analyzer")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cache hit waited behind an unrelated fit")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestService_AnalyzerWaiterHonorsContext(t *testing.T) {
	svc := newTestService()
	started, release := make(chan struct{}), make(chan struct{})
	svc.fit = blockingFit(3, started, release)
	defer close(release)

	go svc.Analyzer(context.Background(), Params{SeedT: 3})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := svc.Analyzer(ctx, Params{SeedT: 3}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestService_AnalyzerFitErrorNotCached(t *testing.T) {
	svc := newTestService()
	calls := 0
	svc.fit = func(cases []synthetic.TransferCase) (*analyzer.Analyzer, error) {
		calls++
		if calls == 1 {
			return nil, analyzer.ErrEmptyTrainingSet
		}
		return fitAnalyzer(cases)
	}

	_, err := svc.Analyzer(context.Background(), Params{})
	if !errors.Is(err, analyzer.ErrEmptyTrainingSet) {
		t.Fatalf("expected wrapped fit error, got %v", err)
	}
	if len(svc.analyzers) != 0 || len(svc.order) != 0 {
		t.Errorf("expected failed fit to leave the cache empty, got %d entries", len(svc.analyzers))
	}

	a, err := svc.Analyzer(context.Background(), Params{})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if !a.Fitted() {
		t.Error("expected a fitted analyzer")
	}
}

func TestService_AnalyzeRequiresReport(t *testing.T) {
	svc := newTestService()
	_, err := svc.Analyze(context.Background(), Params{}, "   ")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestService_Rank(t *testing.T) {
	svc := newTestService()
	ranked, err := svc.Rank(context.Background(), Params{TopK: 3}, "Surgery", "urgent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranked) != 3 {
		t.Errorf("expected 3 rows, got %d", len(ranked))
	}

	if _, err := svc.Rank(context.Background(), Params{}, "Surgery", "severe"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for unknown severity, got %v", err)
	}
	if _, err := svc.Rank(context.Background(), Params{}, "", "stable"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for empty specialty, got %v", err)
	}
}

func TestService_Recommend(t *testing.T) {
	svc := newTestService()
	rec, err := svc.Recommend(context.Background(), Params{}, cardiologyReport)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Prediction.Specialty != "Cardiology" {
		t.Errorf("expected Cardiology, got %s", rec.Prediction.Specialty)
	}
	if len(rec.Ranked) != 5 {
		t.Errorf("expected 5 ranked hospitals, got %d", len(rec.Ranked))
	}
	if rec.Best.Name != rec.Ranked[0].Name {
		t.Error("expected best to be the first ranked row")
	}
	if len(rec.TopSpecialties) > 5 {
		t.Errorf("expected at most 5 specialty probabilities, got %d", len(rec.TopSpecialties))
	}
	if rec.NoMatch != !rec.Best.Matched() {
		t.Error("no_match flag disagrees with best score")
	}
	if rec.NoMatch {
		if len(rec.Reasons) != 1 || rec.Reasons[0] != ranking.NoMatchReason {
			t.Errorf("unexpected reasons for no match: %v", rec.Reasons)
		}
	} else if len(rec.Reasons) != 4 {
		t.Errorf("expected 4 reason items, got %v", rec.Reasons)
	}
	if rec.Params != DefaultParams() {
		t.Errorf("expected resolved default params, got %+v", rec.Params)
	}
}
