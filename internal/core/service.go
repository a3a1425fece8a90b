package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tabinfer/internal/bayes"
	"github.com/JonMunkholm/tabinfer/internal/config"
	"github.com/JonMunkholm/tabinfer/internal/dataset"
	"github.com/JonMunkholm/tabinfer/internal/kmeans"
	"github.com/JonMunkholm/tabinfer/internal/logging"
	"github.com/JonMunkholm/tabinfer/internal/reduct"
	"github.com/JonMunkholm/tabinfer/internal/tree"
)

// Service runs engines on uploaded tables under the configured limits and
// records every run.
type Service struct {
	cfg     *config.Config
	limiter *ComputeLimiter
	store   RunStore
	now     func() time.Time
}

// NewService creates a Service. A nil store keeps history in memory.
func NewService(cfg *config.Config, store RunStore) *Service {
	if store == nil {
		store = NewMemoryRunStore(cfg.History.MemoryCapacity)
	}
	return &Service{
		cfg:     cfg,
		limiter: NewComputeLimiter(cfg.Compute.MaxConcurrent, cfg.Compute.MaxWaitTime),
		store:   store,
		now:     time.Now,
	}
}

// Upload is a table to analyse.
type Upload struct {
	FileName string
	Body     io.Reader
}

// LoadOptions returns the table limits from configuration.
func (s *Service) LoadOptions() dataset.LoadOptions {
	return dataset.LoadOptions{
		MaxBytes: s.cfg.Upload.MaxFileSize,
		MaxRows:  s.cfg.Upload.MaxRows,
	}
}

// execute is the common path of every engine call: take a compute slot,
// load the table, run fn under the compute timeout, then record the run.
func execute[T any](ctx context.Context, s *Service, in Upload, alg Algorithm, params any,
	fn func(ctx context.Context, ds *dataset.Dataset) (T, error)) (T, error) {
	var zero T
	logger := logging.WithFields(ctx, "algorithm", alg, "file", in.FileName)

	if err := s.limiter.Acquire(ctx); err != nil {
		s.finish(ctx, alg, in, params, nil, 0, err)
		return zero, err
	}
	defer s.limiter.Release()
	activeRuns.Inc()
	defer activeRuns.Dec()

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Compute.Timeout)
	defer cancel()

	start := s.now()
	ds, err := dataset.Load(in.Body, s.LoadOptions())
	if err != nil {
		s.finish(ctx, alg, in, params, nil, time.Since(start), err)
		return zero, fmt.Errorf("load %s: %w", in.FileName, err)
	}
	rowsLoaded.Observe(float64(ds.NumRows()))
	logger.Debug("table loaded", "rows", ds.NumRows(), "columns", ds.NumColumns())

	out, err := fn(runCtx, ds)
	elapsed := time.Since(start)
	runDuration.WithLabelValues(string(alg)).Observe(elapsed.Seconds())
	s.finish(ctx, alg, in, params, ds, elapsed, err)
	if err != nil {
		return zero, err
	}
	return out, nil
}

func (s *Service) finish(ctx context.Context, alg Algorithm, in Upload, params any, ds *dataset.Dataset, elapsed time.Duration, runErr error) {
	logger := logging.WithFields(ctx, "algorithm", alg, "file", in.FileName)

	raw, err := json.Marshal(params)
	if err != nil {
		raw = []byte("{}")
	}
	run := Run{
		ID:         uuid.New().String(),
		Algorithm:  alg,
		FileName:   in.FileName,
		Params:     raw,
		Status:     RunSucceeded,
		DurationMS: elapsed.Milliseconds(),
		ClientIP:   ClientIPFromContext(ctx),
		CreatedAt:  s.now().UTC(),
	}
	if ds != nil {
		run.Rows, run.Columns = ds.NumRows(), ds.NumColumns()
	}

	code := "OK"
	if runErr != nil {
		msg := MapError(runErr)
		code = msg.Code
		run.Status = RunFailed
		run.ErrorCode = msg.Code
		if msg.Category == CategoryInternal {
			logger.Error("run failed", "error", runErr, "duration_ms", run.DurationMS)
		} else {
			logger.Info("run rejected", "code", msg.Code, "error", runErr)
		}
	} else {
		logger.Info("run completed", "rows", run.Rows, "columns", run.Columns, "duration_ms", run.DurationMS)
	}
	runsTotal.WithLabelValues(string(alg), code).Inc()

	// History must not fail a request; the caller's context may already be done.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.Record(storeCtx, run); err != nil {
		logger.Warn("failed to record run", "run_id", run.ID, "error", err)
	}
}

// Preview summarises an uploaded table.
func (s *Service) Preview(ctx context.Context, in Upload, opts dataset.PreviewOptions) (*dataset.PreviewResult, error) {
	return execute(ctx, s, in, AlgorithmPreview, opts, func(_ context.Context, ds *dataset.Dataset) (*dataset.PreviewResult, error) {
		return dataset.Preview(ds, opts), nil
	})
}

// KMeans clusters an uploaded table. Zero MaxIter and Workers take the
// configured defaults.
func (s *Service) KMeans(ctx context.Context, in Upload, p kmeans.Params) (*kmeans.Model, error) {
	if p.MaxIter == 0 {
		p.MaxIter = s.cfg.Compute.KMeansMaxIter
	}
	if p.Workers == 0 {
		p.Workers = s.cfg.Compute.Workers
	}
	return execute(ctx, s, in, AlgorithmKMeans, p, func(ctx context.Context, ds *dataset.Dataset) (*kmeans.Model, error) {
		return kmeans.Run(ctx, ds, p)
	})
}

// NaiveBayes classifies one evidence query against an uploaded table.
func (s *Service) NaiveBayes(ctx context.Context, in Upload, p bayes.Params) (*bayes.Model, error) {
	return execute(ctx, s, in, AlgorithmNaiveBayes, p, func(ctx context.Context, ds *dataset.Dataset) (*bayes.Model, error) {
		return bayes.Run(ctx, ds, p)
	})
}

// DecisionTree induces a tree from an uploaded table.
func (s *Service) DecisionTree(ctx context.Context, in Upload, p tree.Params) (*tree.Result, error) {
	return execute(ctx, s, in, AlgorithmDecisionTree, p, func(ctx context.Context, ds *dataset.Dataset) (*tree.Result, error) {
		return tree.Build(ctx, ds, p)
	})
}

// TreePrediction is a tree together with the classification of one sample.
type TreePrediction struct {
	Prediction tree.Prediction `json:"prediction"`
	Tree       *tree.Result    `json:"model"`
}

// PredictTree induces a tree and classifies sample with it.
func (s *Service) PredictTree(ctx context.Context, in Upload, p tree.Params, sample map[string]string) (*TreePrediction, error) {
	params := struct {
		tree.Params
		Sample map[string]string `json:"sample"`
	}{p, sample}
	return execute(ctx, s, in, AlgorithmTreePredict, params, func(ctx context.Context, ds *dataset.Dataset) (*TreePrediction, error) {
		res, err := tree.Build(ctx, ds, p)
		if err != nil {
			return nil, err
		}
		return &TreePrediction{Prediction: res.Predict(sample), Tree: res}, nil
	})
}

// Reduct runs rough-set analysis. Zero MaxAttributes and Workers take the
// configured defaults.
func (s *Service) Reduct(ctx context.Context, in Upload, p reduct.Params) (*reduct.Result, error) {
	if p.MaxAttributes == 0 {
		p.MaxAttributes = s.cfg.Compute.ReductMaxAttributes
	}
	if p.Workers == 0 {
		p.Workers = s.cfg.Compute.Workers
	}
	return execute(ctx, s, in, AlgorithmReduct, p, func(ctx context.Context, ds *dataset.Dataset) (*reduct.Result, error) {
		res, err := reduct.Run(ctx, ds, p)
		if err != nil {
			return nil, err
		}
		reductSubsets.Add(float64(res.SubsetsEvaluated))
		return res, nil
	})
}

// ApproximationParams selects the decision value to approximate.
type ApproximationParams struct {
	Decision   string   `json:"decision"`
	Attributes []string `json:"attributes"`
	Value      string   `json:"value"`
}

// Approximate computes the rough-set approximation of one decision value.
func (s *Service) Approximate(ctx context.Context, in Upload, p ApproximationParams) (*reduct.Approximation, error) {
	return execute(ctx, s, in, AlgorithmApproximation, p, func(ctx context.Context, ds *dataset.Dataset) (*reduct.Approximation, error) {
		return reduct.Approximate(ctx, ds, p.Decision, p.Attributes, p.Value)
	})
}

// RecentRuns returns up to limit runs, newest first.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	return s.store.Recent(ctx, limit)
}

// LimiterStatus reports compute slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForComputations blocks until in-flight runs finish or ctx ends.
func (s *Service) WaitForComputations(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
