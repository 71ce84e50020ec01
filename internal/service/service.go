package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/daymate-service/internal/client"
	"github.com/kjstillabower/daymate-service/internal/models"
	"github.com/kjstillabower/daymate-service/internal/observability"
	"github.com/kjstillabower/daymate-service/internal/prompt"
	"github.com/kjstillabower/daymate-service/internal/store"
	"github.com/kjstillabower/daymate-service/internal/traffic"
)

const defaultPersistTimeout = 5 * time.Second

// Dependencies are the collaborators of a PlanService. Store may be nil, in
// which case plans are never persisted.
type Dependencies struct {
	Weather    client.WeatherClient
	Geocoder   client.Geocoder
	News       client.NewsClient
	Completion client.CompletionClient
	Store      store.PlanStore

	// HeadlineLimit is capped at client.DefaultHeadlineLimit.
	HeadlineLimit  int
	PersistTimeout time.Duration
}

// PlanRequest is one plan generation. OwnerID is empty for anonymous callers.
// LocationName is accepted from callers but the resolved place name is
// always used instead.
type PlanRequest struct {
	Coordinates  models.Coordinates
	Preferences  models.Preferences
	LocationName string
	OwnerID      string
}

// PlanResult is what a successful run returns to the caller.
type PlanResult struct {
	Plan         models.Plan `json:"plan"`
	LocationName string      `json:"location_name"`
}

// PlanService runs the daily plan pipeline: weather and place name, headlines,
// prompt, completion, parse, then an optional save.
type PlanService struct {
	weather    client.WeatherClient
	geocoder   client.Geocoder
	news       client.NewsClient
	completion client.CompletionClient
	store      store.PlanStore

	headlineLimit  int
	persistTimeout time.Duration
	clock          *monotonicClock
	newID          func() string
}

// NewPlanService creates a PlanService from deps.
func NewPlanService(deps Dependencies) *PlanService {
	limit := deps.HeadlineLimit
	if limit <= 0 || limit > client.DefaultHeadlineLimit {
		limit = client.DefaultHeadlineLimit
	}
	persistTimeout := deps.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}
	return &PlanService{
		weather:        deps.Weather,
		geocoder:       deps.Geocoder,
		news:           deps.News,
		completion:     deps.Completion,
		store:          deps.Store,
		headlineLimit:  limit,
		persistTimeout: persistTimeout,
		clock:          newMonotonicClock(time.Now),
		newID:          uuid.NewString,
	}
}

// Generate runs the pipeline. Any weather, geocode, news or completion error
// aborts the run and is returned as a *PipelineError. Once the completion is
// obtained a result is always returned; unparsable text becomes a fallback
// plan and persistence failures are only logged.
func (s *PlanService) Generate(ctx context.Context, req PlanRequest) (PlanResult, error) {
	logger := observability.LoggerFromContext(ctx)
	start := time.Now()

	weather, place, err := s.weatherAndPlace(ctx, req.Coordinates)
	if err != nil {
		return PlanResult{}, s.fail(logger, err)
	}

	var digest models.NewsDigest
	err = s.step(ctx, StepNews, func(ctx context.Context) error {
		var err error
		digest, err = s.news.FetchNews(ctx, place, s.headlineLimit)
		return err
	})
	if err != nil {
		return PlanResult{}, s.fail(logger, err)
	}

	var text string
	_ = s.step(ctx, StepPrompt, func(context.Context) error {
		text = prompt.Build(weather, digest, req.Preferences)
		return nil
	})

	var raw string
	err = s.step(ctx, StepCompletion, func(ctx context.Context) error {
		var err error
		raw, err = s.completion.Complete(ctx, text)
		return err
	})
	if err != nil {
		return PlanResult{}, s.fail(logger, err)
	}

	var plan models.Plan
	_ = s.step(ctx, StepParse, func(context.Context) error {
		plan = models.ParsePlan(raw)
		return nil
	})
	if plan.Degraded {
		observability.PlanParseDegradedTotal.Inc()
		logger.Info("completion was not a JSON object, serving raw text", zap.Int("raw_length", len(raw)))
	}

	if req.OwnerID != "" {
		s.persist(ctx, logger, req.OwnerID, place, plan)
	}

	outcome := traffic.OutcomeSuccess
	if plan.Degraded {
		outcome = traffic.OutcomeDegraded
	}
	traffic.Record(outcome)
	observability.PlanRunsTotal.WithLabelValues(outcome.String()).Inc()
	logger.Debug("plan generated",
		zap.String("location_name", place),
		zap.Bool("degraded", plan.Degraded),
		zap.Bool("authenticated", req.OwnerID != ""),
		zap.Duration("duration", time.Since(start)),
	)
	return PlanResult{Plan: plan, LocationName: place}, nil
}

// weatherAndPlace issues the weather and geocode calls concurrently. The first
// failure cancels the other call.
func (s *PlanService) weatherAndPlace(ctx context.Context, coords models.Coordinates) (models.WeatherSnapshot, string, error) {
	var (
		weather models.WeatherSnapshot
		place   string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.step(gctx, StepWeather, func(ctx context.Context) error {
			var err error
			weather, err = s.weather.FetchWeather(ctx, coords)
			return err
		})
	})
	g.Go(func() error {
		return s.step(gctx, StepGeocode, func(ctx context.Context) error {
			var err error
			place, err = s.geocoder.ReverseGeocode(ctx, coords)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return models.WeatherSnapshot{}, "", err
	}
	return weather, place, nil
}

// step times fn and wraps its error in a PipelineError for name.
func (s *PlanService) step(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	observability.PlanStepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		return &PipelineError{Step: name, Err: err}
	}
	return nil
}

func (s *PlanService) fail(logger *zap.Logger, err error) error {
	traffic.Record(traffic.OutcomeFailed)
	observability.PlanRunsTotal.WithLabelValues(traffic.OutcomeFailed.String()).Inc()

	fields := []zap.Field{zap.Error(err)}
	if pe, ok := err.(*PipelineError); ok {
		fields = append(fields,
			zap.String("step", pe.Step),
			zap.String("category", string(client.CategorizeError(pe.Err))),
		)
	}
	logger.Error("plan pipeline failed", fields...)
	return err
}

// persist saves the record and waits for the write so history reads after
// the response see it. Failures are logged and counted only.
func (s *PlanService) persist(ctx context.Context, logger *zap.Logger, ownerID, place string, plan models.Plan) {
	if s.store == nil {
		return
	}
	rec := models.PlanRecord{
		ID:           s.newID(),
		OwnerID:      ownerID,
		LocationName: place,
		Plan:         plan,
		CreatedAt:    s.clock.Next(),
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	err := s.step(saveCtx, StepPersist, func(ctx context.Context) error {
		return s.store.Save(ctx, rec)
	})
	if err != nil {
		observability.PlanPersistFailuresTotal.Inc()
		logger.Warn("plan not saved", zap.String("plan_id", rec.ID), zap.String("owner_id", ownerID), zap.Error(err))
		return
	}
	logger.Debug("plan saved", zap.String("plan_id", rec.ID))
}

// History returns the owner's saved plans, newest first.
func (s *PlanService) History(ctx context.Context, ownerID string) ([]models.PlanRecord, error) {
	if s.store == nil {
		return nil, nil
	}
	recs, err := s.store.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return recs, nil
}

// Weather fetches current conditions for the passthrough endpoint.
func (s *PlanService) Weather(ctx context.Context, coords models.Coordinates) (models.WeatherSnapshot, error) {
	return s.weather.FetchWeather(ctx, coords)
}

// News resolves the place name for coords and fetches its headlines.
func (s *PlanService) News(ctx context.Context, coords models.Coordinates) (models.NewsDigest, string, error) {
	place, err := s.geocoder.ReverseGeocode(ctx, coords)
	if err != nil {
		return models.NewsDigest{}, "", err
	}
	digest, err := s.news.FetchNews(ctx, place, s.headlineLimit)
	if err != nil {
		return models.NewsDigest{}, place, err
	}
	return digest, place, nil
}
