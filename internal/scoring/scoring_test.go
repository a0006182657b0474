package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/fraudguard/internal/bus"
	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/opensource-finance/fraudguard/internal/explain"
	"github.com/opensource-finance/fraudguard/internal/features"
	"github.com/opensource-finance/fraudguard/internal/history"
	"github.com/opensource-finance/fraudguard/internal/model"
)

type stubClassifier struct {
	width int
	label int
	proba float64
	err   error
}

func (c *stubClassifier) check(vec []float64) error {
	if c.err != nil {
		return c.err
	}
	if len(vec) != c.width {
		return fmt.Errorf("got %d features, want %d", len(vec), c.width)
	}
	return nil
}

func (c *stubClassifier) Predict(vec []float64) (int, error) {
	if err := c.check(vec); err != nil {
		return 0, err
	}
	return c.label, nil
}

func (c *stubClassifier) PredictProba(vec []float64) ([]float64, error) {
	if err := c.check(vec); err != nil {
		return nil, err
	}
	return []float64{1 - c.proba, c.proba}, nil
}

func (c *stubClassifier) Classes() []int   { return []int{0, 1} }
func (c *stubClassifier) NumFeatures() int { return c.width }
func (c *stubClassifier) Name() string     { return "stub" }

type backendFunc func(ctx context.Context, req domain.ExplanationRequest) (string, error)

func (f backendFunc) Explain(ctx context.Context, req domain.ExplanationRequest) (string, error) {
	return f(ctx, req)
}

type failingStore struct {
	domain.HistoryStore
}

func (failingStore) RecordOutcome(ctx context.Context, handle string, isFraud bool) (*domain.HistoryRecord, error) {
	return nil, fmt.Errorf("%w: disk full", domain.ErrPersistenceWrite)
}

type countingRecorder struct {
	mu          sync.Mutex
	predictions []string
	writeErrs   []error
}

func (r *countingRecorder) ObservePrediction(requested, used string, fraud bool, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predictions = append(r.predictions, requested+"->"+used)
}

func (r *countingRecorder) ObserveHistoryWrite(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeErrs = append(r.writeErrs, err)
}

func fastClassifier(label int, proba float64) *stubClassifier {
	return &stubClassifier{width: features.Width(domain.ModeFast), label: label, proba: proba}
}

func accurateClassifier(label int, proba float64) *stubClassifier {
	return &stubClassifier{width: features.Width(domain.ModeAccurate), label: label, proba: proba}
}

func newRegistry(t *testing.T, fast, accurate model.Classifier) *model.Registry {
	t.Helper()
	reg := model.NewRegistry()
	if fast != nil {
		require.NoError(t, reg.Register(domain.ModeFast, fast))
	}
	if accurate != nil {
		require.NoError(t, reg.Register(domain.ModeAccurate, accurate))
	}
	return reg
}

func newStore(t *testing.T) *history.FileStore {
	t.Helper()
	store, err := history.OpenFile(filepath.Join(t.TempDir(), "fraud_history.json"))
	require.NoError(t, err)
	return store
}

func staticExplainer(text string) *explain.Client {
	return explain.NewClient(backendFunc(func(ctx context.Context, req domain.ExplanationRequest) (string, error) {
		return text, nil
	}), time.Second, nil)
}

func input(mode domain.Mode) *domain.TransactionInput {
	return &domain.TransactionInput{
		UPIID:                "alice@upi",
		Amount:               2500,
		AmountDeviation:      0.8,
		TimeAnomaly:          0.7,
		LocationDistance:     35,
		MerchantNovelty:      0.9,
		TransactionFrequency: 12,
		Mode:                 mode,
		Language:             domain.LanguageEnglish,
	}
}

func TestPredictLegitimate(t *testing.T) {
	svc := New(newRegistry(t, fastClassifier(0, 0.123456), nil), model.NewEngine(0), newStore(t), Options{
		Explainer: staticExplainer("looks fine"),
	})

	res, err := svc.Predict(context.Background(), input(domain.ModeFast))
	require.NoError(t, err)

	assert.NotEmpty(t, res.PredictionID)
	assert.False(t, res.Fraud)
	assert.Equal(t, 0.1235, res.RiskScore)
	assert.Equal(t, domain.ModeFast, res.ModelUsed)
	assert.Equal(t, int64(0), res.FraudCount)
	assert.False(t, res.RecurringFraud)
	require.NotNil(t, res.Explanation)
	assert.Equal(t, "looks fine", *res.Explanation)
}

func TestPredictFallsBackToLoadedModel(t *testing.T) {
	// the fast stub rejects any vector that is not six wide
	svc := New(newRegistry(t, fastClassifier(1, 0.9), nil), model.NewEngine(0), newStore(t), Options{})

	res, err := svc.Predict(context.Background(), input(domain.ModeAccurate))
	require.NoError(t, err)
	assert.Equal(t, domain.ModeFast, res.ModelUsed)
	assert.True(t, res.Fraud)
}

func TestPredictUsesAccurateWhenLoaded(t *testing.T) {
	svc := New(newRegistry(t, fastClassifier(0, 0.1), accurateClassifier(1, 0.8)), model.NewEngine(0), newStore(t), Options{})

	res, err := svc.Predict(context.Background(), input(domain.ModeAccurate))
	require.NoError(t, err)
	assert.Equal(t, domain.ModeAccurate, res.ModelUsed)
	assert.True(t, res.Fraud)
	assert.Equal(t, 0.8, res.RiskScore)
}

func TestPredictRecurringAfterThirdFraud(t *testing.T) {
	svc := New(newRegistry(t, fastClassifier(1, 0.97), nil), model.NewEngine(0), newStore(t), Options{})
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		res, err := svc.Predict(ctx, input(domain.ModeFast))
		require.NoError(t, err)
		assert.Equal(t, int64(i), res.FraudCount)
		assert.Equal(t, i >= 3, res.RecurringFraud, "call %d", i)
	}
}

func TestPredictCustomThreshold(t *testing.T) {
	svc := New(newRegistry(t, fastClassifier(1, 0.97), nil), model.NewEngine(0), newStore(t), Options{
		RecurringThreshold: 1,
	})

	res, err := svc.Predict(context.Background(), input(domain.ModeFast))
	require.NoError(t, err)
	assert.True(t, res.RecurringFraud)
}

func TestPredictExplanationTimeoutKeepsVerdict(t *testing.T) {
	slow := explain.NewClient(backendFunc(func(ctx context.Context, req domain.ExplanationRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), 50*time.Millisecond, nil)

	svc := New(newRegistry(t, fastClassifier(1, 0.91), nil), model.NewEngine(0), newStore(t), Options{Explainer: slow})

	res, err := svc.Predict(context.Background(), input(domain.ModeFast))
	require.NoError(t, err)
	assert.True(t, res.Fraud)
	assert.Equal(t, 0.91, res.RiskScore)
	assert.Equal(t, int64(1), res.FraudCount)
	require.NotNil(t, res.Explanation)
	assert.Equal(t, explain.FallbackTimeout, *res.Explanation)
}

func TestPredictExplanationRequestCarriesVerdict(t *testing.T) {
	got := make(chan domain.ExplanationRequest, 1)
	client := explain.NewClient(backendFunc(func(ctx context.Context, req domain.ExplanationRequest) (string, error) {
		got <- req
		return "ok", nil
	}), time.Second, nil)

	svc := New(newRegistry(t, fastClassifier(1, 0.654321), nil), model.NewEngine(0), newStore(t), Options{Explainer: client})
	in := input(domain.ModeFast)
	in.Language = domain.LanguageMarathi

	_, err := svc.Predict(context.Background(), in)
	require.NoError(t, err)

	req := <-got
	assert.True(t, req.IsFraud)
	assert.Equal(t, 0.654321, req.RiskScore)
	assert.Equal(t, domain.LanguageMarathi, req.Language)
	assert.Equal(t, in.LocationDistance, req.LocationDistance)
}

func TestPredictWithoutExplainer(t *testing.T) {
	svc := New(newRegistry(t, fastClassifier(0, 0.2), nil), model.NewEngine(0), newStore(t), Options{})

	res, err := svc.Predict(context.Background(), input(domain.ModeFast))
	require.NoError(t, err)
	assert.Nil(t, res.Explanation)
}

func TestPredictErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("NoModels", func(t *testing.T) {
		svc := New(model.NewRegistry(), model.NewEngine(0), newStore(t), Options{})
		_, err := svc.Predict(ctx, input(domain.ModeFast))
		assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	})

	t.Run("ClassifierFailureLeavesHistoryUntouched", func(t *testing.T) {
		clf := fastClassifier(0, 0)
		clf.err = errors.New("corrupt tree")
		store := newStore(t)
		svc := New(newRegistry(t, clf, nil), model.NewEngine(0), store, Options{})

		_, err := svc.Predict(ctx, input(domain.ModeFast))
		assert.ErrorIs(t, err, domain.ErrPredictionFailed)

		_, err = store.Get(ctx, "alice@upi")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("PersistenceFailureIsFatal", func(t *testing.T) {
		rec := &countingRecorder{}
		svc := New(newRegistry(t, fastClassifier(1, 0.9), nil), model.NewEngine(0), failingStore{}, Options{
			Explainer: staticExplainer("never used"),
			Recorder:  rec,
		})

		res, err := svc.Predict(ctx, input(domain.ModeFast))
		assert.Nil(t, res)
		assert.ErrorIs(t, err, domain.ErrPersistenceWrite)
		require.Len(t, rec.writeErrs, 1)
		assert.Error(t, rec.writeErrs[0])
	})
}

func TestPredictPublishesEvent(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	events := make(chan domain.PredictionRecord, 1)
	metadata := make(chan map[string]string, 1)
	_, err := eventBus.Subscribe(context.Background(), domain.TopicPredictionScored, func(ctx context.Context, msg *domain.Message) error {
		var rec domain.PredictionRecord
		if err := json.Unmarshal(msg.Payload, &rec); err != nil {
			return err
		}
		metadata <- msg.Metadata
		events <- rec
		return nil
	})
	require.NoError(t, err)

	rec := &countingRecorder{}
	svc := New(newRegistry(t, fastClassifier(1, 0.75), nil), model.NewEngine(0), newStore(t), Options{
		Bus:       eventBus,
		Recorder:  rec,
		Explainer: staticExplainer("reasons"),
	})

	ctx := domain.WithTraceID(context.Background(), "trace-42")
	res, err := svc.Predict(ctx, input(domain.ModeAccurate))
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, res.PredictionID, ev.ID)
		assert.Equal(t, domain.ModeAccurate, ev.RequestedMode)
		assert.Equal(t, domain.ModeFast, ev.ModelUsed)
		assert.Len(t, ev.Features, features.Width(domain.ModeFast))
		assert.Equal(t, "reasons", ev.Explanation)
		assert.Equal(t, "trace-42", ev.TraceID)
		assert.Equal(t, int64(1), ev.FraudCount)
		md := <-metadata
		assert.Equal(t, "trace-42", md["trace_id"])
		assert.Equal(t, res.PredictionID, md["prediction_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("prediction event not published")
	}

	assert.Equal(t, []string{"accurate->fast"}, rec.predictions)
}

func TestPredictConcurrentSameHandle(t *testing.T) {
	store := newStore(t)
	svc := New(newRegistry(t, fastClassifier(1, 0.99), nil), model.NewEngine(0), store, Options{})

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Predict(context.Background(), input(domain.ModeFast))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(context.Background(), "alice@upi")
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.FraudCount)
}

func TestRoundRiskScore(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{1, 1},
		{0.12344, 0.1234},
		{0.12345, 0.1235},
		{0.99995, 1},
		{0.5, 0.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundRiskScore(tt.in), "input %v", tt.in)
	}
}
