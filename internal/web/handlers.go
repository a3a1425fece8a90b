package web

import (
	"net/http"

	"github.com/JonMunkholm/tabinfer/internal/bayes"
	"github.com/JonMunkholm/tabinfer/internal/core"
	"github.com/JonMunkholm/tabinfer/internal/dataset"
	"github.com/JonMunkholm/tabinfer/internal/kmeans"
	"github.com/JonMunkholm/tabinfer/internal/reduct"
	"github.com/JonMunkholm/tabinfer/internal/tree"
	"github.com/JonMunkholm/tabinfer/internal/web/templates"
)

// endpoints is the API listed on the index page.
var endpoints = []templates.Endpoint{
	{Method: "GET", Path: "/api/health", Summary: "Liveness and compute slot usage"},
	{Method: "POST", Path: "/api/preview", Summary: "Column types, distinct values and sample rows"},
	{Method: "POST", Path: "/api/kmeans", Summary: "K-Means clustering over numeric columns"},
	{Method: "POST", Path: "/api/naive-bayes", Summary: "Naive Bayes classification with a full trace"},
	{Method: "POST", Path: "/api/decision-tree", Summary: "ID3 decision tree induction"},
	{Method: "POST", Path: "/api/decision-tree/predict", Summary: "Induce a tree and classify one sample"},
	{Method: "POST", Path: "/api/reduct", Summary: "Rough-set reducts, core and dependency degree"},
	{Method: "POST", Path: "/api/approximation", Summary: "Lower and upper approximation of one decision value"},
	{Method: "GET", Path: "/api/runs", Summary: "Recent run metadata"},
	{Method: "GET", Path: "/metrics", Summary: "Prometheus metrics"},
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Index(endpoints).Render(r.Context(), w); err != nil {
		s.respondError(w, r, err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]any{
		"status":  "ok",
		"compute": s.service.LimiterStatus(),
	})
}

// withUpload opens the uploaded file, parses the form with parse, and hands
// both to run. Every engine route goes through here.
func withUpload[Req any](s *Server, parse func(*http.Request) (Req, error),
	run func(r *http.Request, in core.Upload, req Req) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, cleanup, err := s.openUpload(w, r)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		defer cleanup()

		req, err := parse(r)
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		out, err := run(r.WithContext(WithRequestMetadata(r.Context(), r)), in, req)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, r, out)
	}
}

func (s *Server) handlePreview() http.HandlerFunc {
	return withUpload(s, parsePreview, func(r *http.Request, in core.Upload, req previewRequest) (any, error) {
		return s.service.Preview(r.Context(), in, dataset.PreviewOptions{
			SampleRows:    req.SampleRows,
			DistinctLimit: req.DistinctLimit,
		})
	})
}

func (s *Server) handleKMeans() http.HandlerFunc {
	return withUpload(s, parseKMeans, func(r *http.Request, in core.Upload, req kmeansRequest) (any, error) {
		p := kmeans.Params{
			K:           req.K,
			Columns:     req.Columns,
			Tol:         s.cfg.Compute.KMeansTolerance,
			RandomState: req.RandomState,
			Init:        kmeans.Init(req.Init),
		}
		if req.MaxIter != nil {
			p.MaxIter = *req.MaxIter
		}
		if req.Tol != nil {
			p.Tol = *req.Tol
		}
		return s.service.KMeans(r.Context(), in, p)
	})
}

func (s *Server) handleNaiveBayes() http.HandlerFunc {
	return withUpload(s, parseBayes, func(r *http.Request, in core.Upload, req bayesRequest) (any, error) {
		return s.service.NaiveBayes(r.Context(), in, bayes.Params{
			Target:   req.Target,
			Features: req.Features,
			Evidence: req.Evidence,
			Laplace:  req.Laplace,
		})
	})
}

func treeParams(req treeRequest) tree.Params {
	return tree.Params{
		Target:          req.Target,
		Features:        req.Features,
		MaxDepth:        req.MaxDepth,
		MinSamplesSplit: req.MinSamplesSplit,
	}
}

func (s *Server) handleDecisionTree() http.HandlerFunc {
	parse := func(r *http.Request) (treeRequest, error) { return parseTree(r, false) }
	return withUpload(s, parse, func(r *http.Request, in core.Upload, req treeRequest) (any, error) {
		return s.service.DecisionTree(r.Context(), in, treeParams(req))
	})
}

func (s *Server) handleTreePredict() http.HandlerFunc {
	parse := func(r *http.Request) (treeRequest, error) { return parseTree(r, true) }
	return withUpload(s, parse, func(r *http.Request, in core.Upload, req treeRequest) (any, error) {
		return s.service.PredictTree(r.Context(), in, treeParams(req), req.Sample)
	})
}

func (s *Server) handleReduct() http.HandlerFunc {
	return withUpload(s, parseReduct, func(r *http.Request, in core.Upload, req reductRequest) (any, error) {
		return s.service.Reduct(r.Context(), in, reduct.Params{
			Decision:   req.Decision,
			Conditions: req.Conditions,
		})
	})
}

func (s *Server) handleApproximation() http.HandlerFunc {
	return withUpload(s, parseApproximation, func(r *http.Request, in core.Upload, req approximationRequest) (any, error) {
		return s.service.Approximate(r.Context(), in, core.ApproximationParams{
			Decision:   req.Decision,
			Attributes: req.Attributes,
			Value:      req.Value,
		})
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	req, err := parseRuns(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	runs, err := s.service.RecentRuns(r.Context(), req.Limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]any{"runs": runs})
}
