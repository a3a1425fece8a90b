package dataset

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy shared by the loader and every engine. Callers test with
// errors.Is; the wrapped message carries the attribute, class or iteration
// that triggered the failure.
var (
	// ErrInvalidParameter means the caller supplied a missing, out-of-range or
	// unknown-column parameter. Retrying with adjusted input fixes it.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrDegenerateModel means the result is mathematically undefined for the
	// given data and parameters.
	ErrDegenerateModel = errors.New("degenerate model")

	// ErrSearchTooLarge means an enumeration guard tripped before any work ran.
	ErrSearchTooLarge = errors.New("search too large")

	// ErrCancelled means the caller's context ended mid-computation.
	ErrCancelled = errors.New("computation cancelled")

	// ErrMalformedInput means the table could not be parsed or typed.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInputTooLarge is the MalformedInput case for files over the size cap.
	ErrInputTooLarge = fmt.Errorf("%w: file exceeds the size limit", ErrMalformedInput)
)

// Invalidf wraps ErrInvalidParameter with a formatted detail.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

// Malformedf wraps ErrMalformedInput with a formatted detail.
func Malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}

// Canceled returns nil while ctx is live, otherwise an ErrCancelled error
// that also wraps the context's cause and the given stage.
func Canceled(ctx context.Context, stage string) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w during %s: %w", ErrCancelled, stage, err)
}
