package repository

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "fraudguard-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func samplePrediction(id, upiID string, createdAt time.Time) *domain.PredictionRecord {
	return &domain.PredictionRecord{
		ID:             id,
		UPIID:          upiID,
		RequestedMode:  domain.ModeAccurate,
		ModelUsed:      domain.ModeFast,
		Language:       domain.LanguageHindi,
		Features:       []float64{1200, 0.4, 0.1, 12, 0.2, 3},
		Fraud:          true,
		RiskScore:      0.8123,
		RecurringFraud: false,
		FraudCount:     1,
		Explanation:    "explained",
		TraceID:        "trace-1",
		DurationMs:     7,
		CreatedAt:      createdAt,
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetPrediction", func(t *testing.T) {
		p := samplePrediction("pred-001", "alice@upi", time.Now().UTC())
		if err := repo.SavePrediction(ctx, p); err != nil {
			t.Fatalf("SavePrediction failed: %v", err)
		}

		got, err := repo.GetPrediction(ctx, p.ID)
		if err != nil {
			t.Fatalf("GetPrediction failed: %v", err)
		}
		if got.UPIID != p.UPIID {
			t.Errorf("expected upi %s, got %s", p.UPIID, got.UPIID)
		}
		if got.RequestedMode != domain.ModeAccurate || got.ModelUsed != domain.ModeFast {
			t.Errorf("modes not preserved: %s/%s", got.RequestedMode, got.ModelUsed)
		}
		if !got.Fraud || got.RecurringFraud {
			t.Errorf("flags not preserved: fraud=%v recurring=%v", got.Fraud, got.RecurringFraud)
		}
		if got.RiskScore != p.RiskScore {
			t.Errorf("expected risk %f, got %f", p.RiskScore, got.RiskScore)
		}
		if len(got.Features) != len(p.Features) || got.Features[3] != 12 {
			t.Errorf("features not preserved: %v", got.Features)
		}
		if got.Language != domain.LanguageHindi {
			t.Errorf("expected language hi, got %s", got.Language)
		}
		if got.Explanation != "explained" || got.TraceID != "trace-1" {
			t.Errorf("text fields not preserved: %+v", got)
		}
	})

	t.Run("DuplicateID", func(t *testing.T) {
		p := samplePrediction("pred-001", "alice@upi", time.Now().UTC())
		if err := repo.SavePrediction(ctx, p); err == nil {
			t.Error("expected duplicate id to fail")
		}
	})

	t.Run("MissingID", func(t *testing.T) {
		err := repo.SavePrediction(ctx, &domain.PredictionRecord{})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetPrediction(ctx, "missing")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListByHandle", func(t *testing.T) {
		base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		for i, id := range []string{"b-1", "b-2", "b-3"} {
			p := samplePrediction(id, "bob@upi", base.Add(time.Duration(i)*time.Hour))
			if err := repo.SavePrediction(ctx, p); err != nil {
				t.Fatalf("SavePrediction failed: %v", err)
			}
		}

		list, err := repo.ListPredictionsByHandle(ctx, "bob@upi", 2)
		if err != nil {
			t.Fatalf("ListPredictionsByHandle failed: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 records, got %d", len(list))
		}
		if list[0].ID != "b-3" || list[1].ID != "b-2" {
			t.Errorf("expected newest first, got %s, %s", list[0].ID, list[1].ID)
		}
	})
}

func TestSQLiteHistory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("FirstObservation", func(t *testing.T) {
		rec, err := repo.RecordOutcome(ctx, "carol@upi", false)
		if err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}
		if rec.FraudCount != 0 {
			t.Errorf("expected count 0, got %d", rec.FraudCount)
		}
		if rec.LastSeen.IsZero() {
			t.Error("expected last_seen to be set")
		}
	})

	t.Run("CountsOnlyFraud", func(t *testing.T) {
		outcomes := []bool{true, false, true, true}
		var rec *domain.HistoryRecord
		var err error
		for _, fraud := range outcomes {
			rec, err = repo.RecordOutcome(ctx, "dave@upi", fraud)
			if err != nil {
				t.Fatalf("RecordOutcome failed: %v", err)
			}
		}
		if rec.FraudCount != 3 {
			t.Errorf("expected count 3, got %d", rec.FraudCount)
		}

		got, err := repo.Get(ctx, "dave@upi")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if *got != *rec {
			t.Errorf("Get returned %+v, RecordOutcome returned %+v", got, rec)
		}
	})

	t.Run("LastSeenNeverMovesBack", func(t *testing.T) {
		later := time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)
		repo.now = func() time.Time { return later }
		if _, err := repo.RecordOutcome(ctx, "erin@upi", false); err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}

		repo.now = func() time.Time { return later.Add(-time.Minute) }
		rec, err := repo.RecordOutcome(ctx, "erin@upi", false)
		if err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}
		if !rec.LastSeen.Equal(later) {
			t.Errorf("expected last_seen %v, got %v", later, rec.LastSeen)
		}
		repo.now = time.Now
	})

	t.Run("Snapshot", func(t *testing.T) {
		snap, err := repo.Snapshot(ctx)
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if len(snap) != 3 {
			t.Errorf("expected 3 handles, got %d", len(snap))
		}
		if snap["dave@upi"].FraudCount != 3 {
			t.Errorf("expected dave count 3, got %d", snap["dave@upi"].FraudCount)
		}
	})

	t.Run("EmptyHandle", func(t *testing.T) {
		_, err := repo.RecordOutcome(ctx, "", true)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("UnknownHandle", func(t *testing.T) {
		_, err := repo.Get(ctx, "nobody@upi")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSQLiteHistoryConcurrent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.RecordOutcome(ctx, "hot@upi", true); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	rec, err := repo.Get(ctx, "hot@upi")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.FraudCount != n {
		t.Errorf("expected %d, got %d (lost updates)", n, rec.FraudCount)
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	if got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("unexpected postgres query: %s", got)
	}

	lite := &SQLRepository{driver: "sqlite"}
	if q := lite.rebind("a = ?"); q != "a = ?" {
		t.Errorf("sqlite query should be unchanged, got %s", q)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{
		PostgresUser:     "fraud",
		PostgresPassword: "p@ss word",
	})

	for _, want := range []string{"host=localhost", "port=5432", "dbname=fraudguard", "sslmode=disable", "user=fraud", "password='p@ss word'"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "mysql"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}
