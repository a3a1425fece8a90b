package web

// requests.go turns multipart form fields into engine parameters.
//
// Numeric fields that are absent stay nil so that defaults apply; fields that
// are present but unparsable are rejected as invalid parameters. List fields
// accept repeated values, comma-separated values or a JSON array.

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/JonMunkholm/tabinfer/internal/core"
	"github.com/JonMunkholm/tabinfer/internal/dataset"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("form"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// validateRequest runs struct validation and reports the first failure as
// an invalid parameter.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return dataset.Invalidf("%v", err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return dataset.Invalidf("%s is required", fe.Field())
	case "min", "gte":
		return dataset.Invalidf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return dataset.Invalidf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return dataset.Invalidf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return dataset.Invalidf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

type kmeansRequest struct {
	K           int      `form:"k" validate:"required,min=1"`
	MaxIter     *int     `form:"max_iter" validate:"omitempty,min=1"`
	Tol         *float64 `form:"tol" validate:"omitempty,gte=0"`
	RandomState *int64   `form:"random_state"`
	Columns     []string `form:"columns"`
	Init        string   `form:"init" validate:"omitempty,oneof=random kmeans++"`
}

type bayesRequest struct {
	Target   string            `form:"target" validate:"required"`
	Features []string          `form:"features"`
	Evidence map[string]string `form:"evidence"`
	Laplace  float64           `form:"laplace" validate:"gte=0"`
}

type treeRequest struct {
	Target          string            `form:"target" validate:"required"`
	Features        []string          `form:"features"`
	MaxDepth        *int              `form:"max_depth" validate:"omitempty,gte=0"`
	MinSamplesSplit int               `form:"min_samples_split" validate:"min=1"`
	Sample          map[string]string `form:"sample"`
}

type reductRequest struct {
	Decision   string   `form:"decision" validate:"required"`
	Conditions []string `form:"conditions"`
}

type approximationRequest struct {
	Decision   string   `form:"decision" validate:"required"`
	Attributes []string `form:"attributes"`
	Value      string   `form:"value" validate:"required"`
}

type previewRequest struct {
	SampleRows    int `form:"sample_rows" validate:"gte=0,lte=1000"`
	DistinctLimit int `form:"distinct_limit" validate:"gte=0,lte=1000"`
}

type runsRequest struct {
	Limit int `form:"limit" validate:"min=1,max=500"`
}

// formString returns the first non-empty value among the given field names.
func formString(r *http.Request, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(r.FormValue(n)); v != "" {
			return v
		}
	}
	return ""
}

// formList gathers a list field from any of its aliases.
func formList(r *http.Request, names ...string) ([]string, error) {
	var out []string
	for _, n := range names {
		for _, raw := range r.Form[n] {
			raw = strings.TrimSpace(raw)
			if strings.HasPrefix(raw, "[") {
				var items []string
				if err := json.Unmarshal([]byte(raw), &items); err != nil {
					return nil, dataset.Invalidf("%s must be a JSON array of strings", n)
				}
				out = append(out, items...)
				continue
			}
			out = append(out, strings.Split(raw, ",")...)
		}
		if len(out) > 0 {
			break
		}
	}
	out = lo.Map(out, func(s string, _ int) string { return strings.TrimSpace(s) })
	return lo.Compact(out), nil
}

func formInt(r *http.Request, name string) (*int, error) {
	raw := formString(r, name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, dataset.Invalidf("%s must be an integer, got %q", name, raw)
	}
	return &v, nil
}

func formInt64(r *http.Request, name string) (*int64, error) {
	raw := formString(r, name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, dataset.Invalidf("%s must be an integer, got %q", name, raw)
	}
	return &v, nil
}

func formFloat(r *http.Request, names ...string) (*float64, error) {
	raw := formString(r, names...)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, dataset.Invalidf("%s must be a number, got %q", names[0], raw)
	}
	return &v, nil
}

// formObject reads a JSON object field, then overlays fields named
// "<name>.<key>". Values may be JSON strings, numbers, booleans or null.
func formObject(r *http.Request, name string) (map[string]string, error) {
	out := make(map[string]string)
	if raw := formString(r, name); raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, dataset.Invalidf("%s must be a JSON object: %v", name, err)
		}
		for k, v := range obj {
			s, err := scalarText(v)
			if err != nil {
				return nil, dataset.Invalidf("%s.%s: %v", name, k, err)
			}
			out[k] = s
		}
	}

	prefix := name + "."
	for key, values := range r.Form {
		if strings.HasPrefix(key, prefix) && len(values) > 0 {
			out[strings.TrimPrefix(key, prefix)] = values[0]
		}
	}
	return out, nil
}

func scalarText(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("expected a scalar value, got %T", v)
	}
}

func parseKMeans(r *http.Request) (kmeansRequest, error) {
	var req kmeansRequest
	var err error
	k, err := formInt(r, "k")
	if err != nil {
		return req, err
	}
	if k != nil {
		req.K = *k
		if req.K < 1 {
			return req, dataset.Invalidf("k must be at least 1, got %d", req.K)
		}
	}
	if req.MaxIter, err = formInt(r, "max_iter"); err != nil {
		return req, err
	}
	if req.Tol, err = formFloat(r, "tol"); err != nil {
		return req, err
	}
	if req.RandomState, err = formInt64(r, "random_state"); err != nil {
		return req, err
	}
	if req.Columns, err = formList(r, "columns"); err != nil {
		return req, err
	}
	req.Init = formString(r, "init")
	return req, validateRequest(req)
}

func parseBayes(r *http.Request) (bayesRequest, error) {
	var req bayesRequest
	var err error
	req.Target = formString(r, "target")
	if req.Features, err = formList(r, "features", "feature_columns"); err != nil {
		return req, err
	}
	if req.Evidence, err = formObject(r, "evidence"); err != nil {
		return req, err
	}
	laplace, err := formFloat(r, "laplace", "alpha")
	if err != nil {
		return req, err
	}
	if laplace != nil {
		req.Laplace = *laplace
	}
	return req, validateRequest(req)
}

func parseTree(r *http.Request, withSample bool) (treeRequest, error) {
	req := treeRequest{MinSamplesSplit: 2}
	var err error
	req.Target = formString(r, "target")
	if req.Features, err = formList(r, "features", "feature_columns"); err != nil {
		return req, err
	}
	if req.MaxDepth, err = formInt(r, "max_depth"); err != nil {
		return req, err
	}
	split, err := formInt(r, "min_samples_split")
	if err != nil {
		return req, err
	}
	if split != nil {
		req.MinSamplesSplit = *split
	}
	if withSample {
		if req.Sample, err = formObject(r, "sample"); err != nil {
			return req, err
		}
		if len(req.Sample) == 0 {
			return req, dataset.Invalidf("sample is required")
		}
	}
	return req, validateRequest(req)
}

func parseReduct(r *http.Request) (reductRequest, error) {
	var req reductRequest
	var err error
	req.Decision = formString(r, "decision")
	if req.Conditions, err = formList(r, "conditions", "conditional"); err != nil {
		return req, err
	}
	return req, validateRequest(req)
}

func parseApproximation(r *http.Request) (approximationRequest, error) {
	var req approximationRequest
	var err error
	req.Decision = formString(r, "decision")
	req.Value = formString(r, "value")
	if req.Attributes, err = formList(r, "attributes", "conditions"); err != nil {
		return req, err
	}
	return req, validateRequest(req)
}

func parsePreview(r *http.Request) (previewRequest, error) {
	var req previewRequest
	for name, dst := range map[string]*int{"sample_rows": &req.SampleRows, "distinct_limit": &req.DistinctLimit} {
		v, err := formInt(r, name)
		if err != nil {
			return req, err
		}
		if v != nil {
			*dst = *v
		}
	}
	return req, validateRequest(req)
}

func parseRuns(r *http.Request) (runsRequest, error) {
	req := runsRequest{Limit: 50}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return req, dataset.Invalidf("limit must be an integer, got %q", raw)
		}
		req.Limit = v
	}
	return req, validateRequest(req)
}

// openUpload parses the multipart form and opens the file field. The
// returned cleanup closes the file and removes spooled parts.
func (s *Server) openUpload(w http.ResponseWriter, r *http.Request) (core.Upload, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
			return core.Upload{}, nil, fmt.Errorf("%w: %w", dataset.ErrInputTooLarge, err)
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return core.Upload{}, nil, fmt.Errorf("%w: expected multipart/form-data", core.ErrNoFile)
		}
		return core.Upload{}, nil, dataset.Malformedf("parse multipart form: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		_ = r.MultipartForm.RemoveAll()
		return core.Upload{}, nil, fmt.Errorf("%w: %w", core.ErrNoFile, err)
	}
	cleanup := func() {
		_ = file.Close()
		_ = r.MultipartForm.RemoveAll()
	}
	return core.Upload{FileName: header.Filename, Body: file}, cleanup, nil
}

const (
	// formOverhead allows for multipart framing and the non-file fields.
	formOverhead = 1 << 20
	// multipartMemory is how much of the form is held in memory before
	// parts spill to temporary files.
	multipartMemory = 32 << 20
)
