package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/JonMunkholm/tabinfer/internal/dataset"
)

func TestMapError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	deadline, stop := context.WithTimeout(context.Background(), 0)
	defer stop()
	<-deadline.Done()

	tests := []struct {
		name         string
		err          error
		wantCode     string
		wantStatus   int
		wantCategory Category
	}{
		{"nil error returns empty", nil, "", 0, ""},
		{"invalid parameter", dataset.Invalidf("target column %q not found", "x"), "PARAM001", http.StatusBadRequest, CategoryClient},
		{"degenerate model", fmt.Errorf("%w: all scores are zero", dataset.ErrDegenerateModel), "MODEL001", http.StatusUnprocessableEntity, CategoryComputation},
		{"search too large", fmt.Errorf("%w: 30 attributes", dataset.ErrSearchTooLarge), "SEARCH001", http.StatusUnprocessableEntity, CategoryComputation},
		{"cancelled", dataset.Canceled(ctx, "k-means"), "RUN001", http.StatusServiceUnavailable, CategoryComputation},
		{"timed out", dataset.Canceled(deadline, "reduct search"), "RUN002", http.StatusServiceUnavailable, CategoryComputation},
		{"bare deadline", context.DeadlineExceeded, "RUN002", http.StatusServiceUnavailable, CategoryComputation},
		{"busy", fmt.Errorf("%w: waited 15s", ErrTooManyComputations), "RUN003", http.StatusTooManyRequests, CategoryComputation},
		{"input too large", dataset.ErrInputTooLarge, "FILE001", http.StatusRequestEntityTooLarge, CategoryClient},
		{"malformed", dataset.Malformedf("line 3: bare quote"), "FILE002", http.StatusBadRequest, CategoryClient},
		{"empty file", dataset.Malformedf("file is empty"), "FILE005", http.StatusBadRequest, CategoryClient},
		{"no file", fmt.Errorf("read form: %w", ErrNoFile), "FILE004", http.StatusBadRequest, CategoryClient},
		{"rate limited", ErrRateLimited, "RATE001", http.StatusTooManyRequests, CategoryClient},
		{"body too large by text", errors.New("http: request body too large"), "FILE001", http.StatusRequestEntityTooLarge, CategoryClient},
		{"multipart by text", errors.New("multipart: NextPart: EOF"), "FILE002", http.StatusBadRequest, CategoryClient},
		{"case insensitive", errors.New("Invalid UTF-8 sequence"), "FILE003", http.StatusBadRequest, CategoryClient},
		{"unknown error", errors.New("some random internal error"), "ERR000", http.StatusInternalServerError, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("MapError() status = %d, want %d", got.Status, tt.wantStatus)
			}
			if got.Category != tt.wantCategory {
				t.Errorf("MapError() category = %q, want %q", got.Category, tt.wantCategory)
			}
		})
	}
}

func TestMapError_DetailOnlyForKnownErrors(t *testing.T) {
	known := MapError(dataset.Invalidf("k must be at least 1, got 0"))
	if known.Detail == "" {
		t.Error("known error should keep its detail")
	}

	unknown := MapError(errors.New("pgx: password authentication failed"))
	if unknown.Detail != "" {
		t.Errorf("unknown error leaked detail %q", unknown.Detail)
	}
}

func TestHTTPStatus(t *testing.T) {
	if got := HTTPStatus(nil); got != http.StatusOK {
		t.Errorf("HTTPStatus(nil) = %d, want 200", got)
	}
	if got := HTTPStatus(dataset.ErrInvalidParameter); got != http.StatusBadRequest {
		t.Errorf("HTTPStatus(invalid) = %d, want 400", got)
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(ErrRateLimited)
	want := "Too many requests (Code: RATE001). Please wait a moment before trying again"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"typed error is user facing", dataset.ErrSearchTooLarge, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}
