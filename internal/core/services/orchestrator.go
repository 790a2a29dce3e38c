package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
	"github.com/StarfishJ/SceneSound/internal/core/ports"
	"github.com/StarfishJ/SceneSound/internal/imageprep"
	"github.com/StarfishJ/SceneSound/internal/logging"
	"github.com/StarfishJ/SceneSound/internal/metrics"
	"github.com/StarfishJ/SceneSound/internal/worker"
)

// ImagePreparer validates and shrinks uploaded images.
type ImagePreparer interface {
	Prepare(data []byte) (imageprep.Image, error)
}

// AnalyzeInput is one analyze request. At least one of Image or Text must be set.
type AnalyzeInput struct {
	Image []byte
	Text  string
}

// Result is the outcome of one analyze request.
type Result struct {
	RequestID string                    `json:"requestId"`
	Scenes    []domain.SceneObservation `json:"scenes"`
	Styles    []domain.StyleTag         `json:"styles"`
	Playlist  []domain.Track            `json:"playlist"`
	Degraded  bool                      `json:"degraded"`
	Stage     domain.Stage              `json:"stage"`
	// FailedAt is the stage that failed; empty on success.
	FailedAt domain.Stage `json:"failedAt,omitempty"`
}

// Orchestrator runs the analyze pipeline: validate, classify, map, fetch.
type Orchestrator struct {
	images     ImagePreparer
	classifier *SceneClassifier
	fetcher    *TrackFetcher
	log        ports.AnalysisLog
	jobs       *worker.Pool
}

// NewOrchestrator constructs an Orchestrator. log and jobs may be nil; with a
// nil jobs pool records are written synchronously.
func NewOrchestrator(images ImagePreparer, classifier *SceneClassifier, fetcher *TrackFetcher, log ports.AnalysisLog, jobs *worker.Pool) *Orchestrator {
	return &Orchestrator{
		images:     images,
		classifier: classifier,
		fetcher:    fetcher,
		log:        log,
		jobs:       jobs,
	}
}

// Analyze runs every stage in order. On failure the returned Result still
// carries the request id and the stage that failed.
func (o *Orchestrator) Analyze(ctx context.Context, in AnalyzeInput) (Result, error) {
	start := time.Now()
	res := Result{RequestID: logging.RequestID(ctx)}
	if res.RequestID == "" {
		res.RequestID = uuid.NewString()
	}
	progress := domain.NewProgress()

	err := o.run(ctx, in, progress, &res)
	if err != nil {
		_ = progress.Fail(err)
		res.FailedAt = progress.FailedAt()
		res.Playlist = nil
	}
	res.Stage = progress.Stage()

	metrics.RecordAnalyze(string(finalStage(res)), res.Degraded, err, len(res.Playlist))
	o.record(ctx, in, res, err, time.Since(start))
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, in AnalyzeInput, progress *domain.Progress, res *Result) error {
	if err := progress.Advance(domain.StageValidating); err != nil {
		return domain.Internal("services.Analyze", err)
	}
	text := strings.TrimSpace(in.Text)
	if len(in.Image) == 0 && text == "" {
		return domain.Validation("services.Analyze", http.StatusBadRequest, domain.ErrEmptyRequest)
	}
	var img imageprep.Image
	if len(in.Image) > 0 {
		var err error
		if img, err = o.images.Prepare(in.Image); err != nil {
			return fmt.Errorf("service: prepare image: %w", err)
		}
	}

	if err := progress.Advance(domain.StageClassifying); err != nil {
		return domain.Internal("services.Analyze", err)
	}
	cls, err := o.classifier.Classify(ctx, ClassifyInput{Image: img.Data, ContentType: img.ContentType, Text: text})
	if err != nil {
		return err
	}
	res.Scenes = cls.Observations
	res.Degraded = cls.Degraded

	if err := progress.Advance(domain.StageMapping); err != nil {
		return domain.Internal("services.Analyze", err)
	}
	res.Styles = MapStyles(res.Scenes)

	if err := progress.Advance(domain.StageFetching); err != nil {
		return domain.Internal("services.Analyze", err)
	}
	tracks, err := o.fetcher.Fetch(ctx, res.Styles)
	if err != nil {
		return err
	}
	res.Playlist = tracks

	if err := progress.Advance(domain.StageReady); err != nil {
		return domain.Internal("services.Analyze", err)
	}
	logging.Ctx(ctx).Info().
		Strs("scenes", domain.SceneLabels(res.Scenes)).
		Int("styles", len(res.Styles)).
		Int("tracks", len(res.Playlist)).
		Bool("degraded", res.Degraded).
		Msg("analyze complete")
	return nil
}

func (o *Orchestrator) record(ctx context.Context, in AnalyzeInput, res Result, err error, elapsed time.Duration) {
	if o.log == nil {
		return
	}

	status := http.StatusOK
	if err != nil {
		status = domain.StatusOf(err)
		if errors.Is(err, context.Canceled) {
			status = http.StatusConflict
		}
	}
	rec := domain.AnalysisRecord{
		ID:         uuid.NewString(),
		RequestID:  res.RequestID,
		CreatedAt:  time.Now().UTC(),
		Stage:      finalStage(res),
		Status:     status,
		Scenes:     domain.SceneLabels(res.Scenes),
		Styles:     domain.StyleNames(res.Styles),
		TrackCount: len(res.Playlist),
		Degraded:   res.Degraded,
		HasImage:   len(in.Image) > 0,
		HasText:    strings.TrimSpace(in.Text) != "",
		DurationMS: elapsed.Milliseconds(),
	}

	write := func(ctx context.Context) error {
		return o.log.Record(ctx, rec)
	}
	if o.jobs != nil {
		o.jobs.Submit(worker.Job{Name: "analysis-log", Run: write})
		return
	}
	if werr := write(context.WithoutCancel(ctx)); werr != nil {
		logging.Ctx(ctx).Warn().Err(werr).Msg("failed to record analysis")
	}
}

// finalStage is the stage a request ended in, or the stage that failed.
func finalStage(res Result) domain.Stage {
	if res.FailedAt != "" {
		return res.FailedAt
	}
	return res.Stage
}
