package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/daymate-service/internal/client"
	"github.com/kjstillabower/daymate-service/internal/models"
	"github.com/kjstillabower/daymate-service/internal/observability"
	"github.com/kjstillabower/daymate-service/internal/store"
)

type mockWeatherClient struct {
	weather models.WeatherSnapshot
	err     error
	calls   int32
}

func (m *mockWeatherClient) FetchWeather(ctx context.Context, coords models.Coordinates) (models.WeatherSnapshot, error) {
	atomic.AddInt32(&m.calls, 1)
	return m.weather, m.err
}

type mockGeocoder struct {
	name  string
	err   error
	calls int32
	delay time.Duration
}

func (m *mockGeocoder) ReverseGeocode(ctx context.Context, coords models.Coordinates) (string, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return m.name, m.err
}

type mockNewsClient struct {
	mu        sync.Mutex
	digest    models.NewsDigest
	err       error
	calls     int32
	lastPlace string
	lastLimit int
}

func (m *mockNewsClient) FetchNews(ctx context.Context, place string, limit int) (models.NewsDigest, error) {
	atomic.AddInt32(&m.calls, 1)
	m.mu.Lock()
	m.lastPlace, m.lastLimit = place, limit
	m.mu.Unlock()
	return m.digest, m.err
}

type mockCompletionClient struct {
	mu         sync.Mutex
	text       string
	err        error
	calls      int32
	lastPrompt string
}

func (m *mockCompletionClient) Complete(ctx context.Context, prompt string) (string, error) {
	atomic.AddInt32(&m.calls, 1)
	m.mu.Lock()
	m.lastPrompt = prompt
	m.mu.Unlock()
	return m.text, m.err
}

type failingStore struct{ store.PlanStore }

func (failingStore) Save(context.Context, models.PlanRecord) error {
	return errors.New("disk full")
}

const validPlan = `{"priority_actions":["a"],"suggestions":["b"],"rationale":"r","quick_tips":["c"],"summary":"s"}`

type fixture struct {
	weather    *mockWeatherClient
	geocoder   *mockGeocoder
	news       *mockNewsClient
	completion *mockCompletionClient
	store      *store.MemoryStore
}

func newFixture() *fixture {
	return &fixture{
		weather:    &mockWeatherClient{weather: models.WeatherSnapshot{Condition: "Clear", Temperature: 29.5}},
		geocoder:   &mockGeocoder{name: "Dhaka"},
		news:       &mockNewsClient{digest: models.NewsDigest{Headlines: []string{"Metro extends hours"}}},
		completion: &mockCompletionClient{text: validPlan},
		store:      store.NewMemoryStore(),
	}
}

func (f *fixture) service() *PlanService {
	return NewPlanService(Dependencies{
		Weather:    f.weather,
		Geocoder:   f.geocoder,
		News:       f.news,
		Completion: f.completion,
		Store:      f.store,
	})
}

var dhaka = models.Coordinates{Lat: 23.8103, Lon: 90.4125}

func TestGenerate_Success(t *testing.T) {
	f := newFixture()
	svc := f.service()

	res, err := svc.Generate(context.Background(), PlanRequest{
		Coordinates:  dhaka,
		Preferences:  models.Preferences{"wake": "6am"},
		LocationName: "client supplied",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.LocationName != "Dhaka" {
		t.Errorf("LocationName = %q, want resolved Dhaka (client value ignored)", res.LocationName)
	}
	if res.Plan.Degraded || res.Plan.Summary != "s" {
		t.Errorf("Plan = %+v", res.Plan)
	}
	if f.news.lastPlace != "Dhaka" || f.news.lastLimit != client.DefaultHeadlineLimit {
		t.Errorf("news called with %q/%d", f.news.lastPlace, f.news.lastLimit)
	}
	for _, want := range []string{
		"Weather summary: Clear, 29.5°C, precipitation_prob=0",
		"- Metro extends hours",
		`User preferences: {"wake":"6am"}`,
	} {
		if !strings.Contains(f.completion.lastPrompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	recs, _ := f.store.FindByOwner(context.Background(), "")
	if len(recs) != 0 {
		t.Error("anonymous run must not persist")
	}
}

func TestGenerate_UnparsableCompletion(t *testing.T) {
	f := newFixture()
	f.completion.text = "not json"

	res, err := f.service().Generate(context.Background(), PlanRequest{Coordinates: dhaka})
	if err != nil {
		t.Fatalf("Generate() error = %v, want degraded result", err)
	}
	if !res.Plan.Degraded || res.Plan.Raw != "not json" {
		t.Errorf("Plan = %+v, want raw fallback", res.Plan)
	}
}

func TestGenerate_AbortsOnStepFailure(t *testing.T) {
	upstream := &client.UpstreamError{Provider: "x", StatusCode: 503, Body: "down"}
	notConfigured := client.ErrNotConfigured

	tests := []struct {
		name          string
		setup         func(f *fixture)
		wantStep      string
		wantErr       error
		wantNewsCalls int32
		wantLLMCalls  int32
	}{
		{"weather upstream", func(f *fixture) { f.weather.err = upstream }, StepWeather, upstream, 0, 0},
		{"weather not configured", func(f *fixture) { f.weather.err = notConfigured }, StepWeather, notConfigured, 0, 0},
		{"geocode upstream", func(f *fixture) { f.geocoder.err = upstream }, StepGeocode, upstream, 0, 0},
		{"news not configured", func(f *fixture) { f.news.err = notConfigured }, StepNews, notConfigured, 1, 0},
		{"completion unsupported", func(f *fixture) { f.completion.err = client.ErrUnsupportedProvider }, StepCompletion, client.ErrUnsupportedProvider, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)

			res, err := f.service().Generate(context.Background(), PlanRequest{Coordinates: dhaka, OwnerID: "u1"})
			var pe *PipelineError
			if !errors.As(err, &pe) {
				t.Fatalf("Generate() error = %v, want *PipelineError", err)
			}
			if pe.Step != tt.wantStep {
				t.Errorf("Step = %q, want %q", pe.Step, tt.wantStep)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error %v does not wrap %v", err, tt.wantErr)
			}
			if res.LocationName != "" || res.Plan.Summary != "" || res.Plan.Degraded {
				t.Errorf("partial result returned: %+v", res)
			}
			if got := atomic.LoadInt32(&f.news.calls); got != tt.wantNewsCalls {
				t.Errorf("news calls = %d, want %d", got, tt.wantNewsCalls)
			}
			if got := atomic.LoadInt32(&f.completion.calls); got != tt.wantLLMCalls {
				t.Errorf("completion calls = %d, want %d", got, tt.wantLLMCalls)
			}
			recs, _ := f.store.FindByOwner(context.Background(), "u1")
			if len(recs) != 0 {
				t.Error("failed run must not persist")
			}
		})
	}
}

func TestGenerate_PersistsNewestFirst(t *testing.T) {
	f := newFixture()
	svc := f.service()
	fixed := time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC)
	svc.clock = newMonotonicClock(func() time.Time { return fixed })

	ctx := context.Background()
	for _, summary := range []string{"one", "two", "three"} {
		f.completion.text = `{"summary":"` + summary + `"}`
		if _, err := svc.Generate(ctx, PlanRequest{Coordinates: dhaka, OwnerID: "u1"}); err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
	}

	recs, err := svc.History(ctx, "u1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("History() len = %d, want 3", len(recs))
	}
	if recs[0].Plan.Summary != "three" || recs[2].Plan.Summary != "one" {
		t.Errorf("History() order = %s,%s,%s", recs[0].Plan.Summary, recs[1].Plan.Summary, recs[2].Plan.Summary)
	}
	for i := 1; i < len(recs); i++ {
		if !recs[i-1].CreatedAt.After(recs[i].CreatedAt) {
			t.Errorf("created_at not strictly increasing: %v then %v", recs[i].CreatedAt, recs[i-1].CreatedAt)
		}
	}
	if recs[0].ID == "" || recs[0].ID == recs[1].ID {
		t.Error("record ids must be unique and non-empty")
	}
	if recs[0].LocationName != "Dhaka" || recs[0].OwnerID != "u1" {
		t.Errorf("record = %+v", recs[0])
	}
}

func TestGenerate_PersistFailureIsSwallowed(t *testing.T) {
	f := newFixture()
	core, logs := observer.New(zapcore.WarnLevel)
	ctx := observability.WithLogger(context.Background(), zap.New(core))

	svc := NewPlanService(Dependencies{
		Weather:    f.weather,
		Geocoder:   f.geocoder,
		News:       f.news,
		Completion: f.completion,
		Store:      failingStore{},
	})
	res, err := svc.Generate(ctx, PlanRequest{Coordinates: dhaka, OwnerID: "u1"})
	if err != nil {
		t.Fatalf("Generate() error = %v, want persistence failure swallowed", err)
	}
	if res.LocationName != "Dhaka" {
		t.Errorf("LocationName = %q", res.LocationName)
	}
	entries := logs.FilterMessage("plan not saved").All()
	if len(entries) != 1 {
		t.Fatalf("expected one warning, got %d", len(entries))
	}
	if entries[0].ContextMap()["owner_id"] != "u1" {
		t.Errorf("warning fields = %v", entries[0].ContextMap())
	}
}

func TestGenerate_LogsPipelineFailure(t *testing.T) {
	f := newFixture()
	f.completion.err = client.ErrNotConfigured
	core, logs := observer.New(zapcore.ErrorLevel)
	ctx := observability.WithLogger(context.Background(), zap.New(core))

	_, err := f.service().Generate(ctx, PlanRequest{Coordinates: dhaka})
	if err == nil {
		t.Fatal("Generate() error = nil")
	}
	if !strings.Contains(err.Error(), "not configured") {
		t.Errorf("error %q should identify the missing configuration", err)
	}
	entries := logs.FilterMessage("plan pipeline failed").All()
	if len(entries) != 1 || entries[0].ContextMap()["step"] != StepCompletion {
		t.Errorf("failure log = %+v", entries)
	}
}

func TestGenerate_Concurrent(t *testing.T) {
	f := newFixture()
	svc := f.service()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Generate(context.Background(), PlanRequest{Coordinates: dhaka, OwnerID: "u1"})
		}()
	}
	wg.Wait()

	recs, _ := svc.History(context.Background(), "u1")
	if len(recs) != 10 {
		t.Fatalf("History() len = %d, want 10", len(recs))
	}
	seen := map[time.Time]bool{}
	for _, r := range recs {
		if seen[r.CreatedAt] {
			t.Fatalf("duplicate created_at %v", r.CreatedAt)
		}
		seen[r.CreatedAt] = true
	}
}

func TestNews_ResolvesPlaceFirst(t *testing.T) {
	f := newFixture()
	digest, place, err := f.service().News(context.Background(), dhaka)
	if err != nil {
		t.Fatalf("News() error = %v", err)
	}
	if place != "Dhaka" || f.news.lastPlace != "Dhaka" || len(digest.Headlines) != 1 {
		t.Errorf("News() = %+v, %q", digest, place)
	}
}

func TestHistory_NoStore(t *testing.T) {
	svc := NewPlanService(Dependencies{})
	recs, err := svc.History(context.Background(), "u1")
	if err != nil || recs != nil {
		t.Errorf("History() = %v, %v; want nil, nil", recs, err)
	}
}

func TestMonotonicClock(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newMonotonicClock(func() time.Time { return now })

	a := c.Next()
	b := c.Next()
	if !b.After(a) {
		t.Errorf("Next() %v not after %v", b, a)
	}
	now = now.Add(-time.Hour)
	if d := c.Next(); !d.After(b) {
		t.Errorf("Next() went backwards with the wall clock: %v", d)
	}
}

// A geocode failure cancels the in-flight weather call. The weather breaker
// must not count that as an OpenWeather failure.
func TestGenerate_CanceledWeatherCallDoesNotTripBreaker(t *testing.T) {
	weatherServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"weather":[{"main":"Clear"}],"main":{"temp":29.5}}`)
	}))
	defer weatherServer.Close()
	geocodeServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer geocodeServer.Close()

	bc := client.BreakerConfig{Enabled: true, FailureThreshold: 2, OpenTimeout: time.Minute}
	f := newFixture()
	svc := NewPlanService(Dependencies{
		Weather:    client.NewOpenWeatherClient("weather-key", weatherServer.URL, 2*time.Second, bc),
		Geocoder:   client.NewNominatimClient(geocodeServer.URL, 2*time.Second, bc),
		News:       f.news,
		Completion: f.completion,
	})

	for i := 0; i < 3; i++ {
		_, err := svc.Generate(context.Background(), PlanRequest{Coordinates: dhaka})
		var pe *PipelineError
		if !errors.As(err, &pe) || pe.Step != StepGeocode {
			t.Fatalf("run %d: Generate() error = %v, want geocode step failure", i, err)
		}
	}

	got, err := svc.Weather(context.Background(), dhaka)
	if err != nil {
		t.Fatalf("Weather() after canceled calls error = %v, want healthy provider", err)
	}
	if got.Condition != "Clear" {
		t.Errorf("Condition = %q, want Clear", got.Condition)
	}
}

func TestNewPlanService_ClampsHeadlineLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, client.DefaultHeadlineLimit},
		{"within bound", 3, 3},
		{"above bound", 12, client.DefaultHeadlineLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			svc := NewPlanService(Dependencies{
				Weather:       f.weather,
				Geocoder:      f.geocoder,
				News:          f.news,
				Completion:    f.completion,
				HeadlineLimit: tt.limit,
			})
			if _, err := svc.Generate(context.Background(), PlanRequest{Coordinates: dhaka}); err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if f.news.lastLimit != tt.want {
				t.Errorf("news limit = %d, want %d", f.news.lastLimit, tt.want)
			}
		})
	}
}
