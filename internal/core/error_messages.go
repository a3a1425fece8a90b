package core

// error_messages.go maps engine and transport errors to user-facing messages
// with a support code.
//
// Codes:
//
//	PARAM001  invalid parameter (unknown column, bad k, missing evidence)  400
//	MODEL001  degenerate model (every posterior score is zero)             422
//	SEARCH001 reduct search too large for the attribute ceiling            422
//	RUN001    run cancelled                                                503
//	RUN002    run timed out                                                503
//	RUN003    too many computations in progress                            429
//	FILE001   file exceeds the size limit                                  413
//	FILE002   file is not a readable CSV                                   400
//	FILE003   file is not valid text                                       400
//	FILE004   no file in the request                                       400
//	FILE005   file has no header or no rows                                400
//	RATE001   too many requests from this client                           429
//	ERR000    anything else; check the server log for the request id       500
//
// Typed errors are resolved with errors.Is first. Errors that only carry
// text fall through to a case-insensitive substring table where the first
// match wins.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/tabinfer/internal/dataset"
)

// ErrRateLimited is returned when a client exceeds its request budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// ErrNoFile is returned when a request carries no uploaded file.
var ErrNoFile = errors.New("no file provided")

// Category separates caller mistakes from failures of the computation itself.
type Category string

const (
	CategoryClient      Category = "client"
	CategoryComputation Category = "computation"
	CategoryInternal    Category = "internal"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message  string   // What happened
	Action   string   // What to do about it
	Code     string   // Support reference
	Category Category
	Status   int
	// Detail is the error text when it is safe to show, empty otherwise.
	Detail string
}

type typedError struct {
	target error
	msg    UserMessage
}

// typedErrors is checked in order; ErrInputTooLarge wraps ErrMalformedInput
// and must come first.
var typedErrors = []typedError{
	{ErrRateLimited, UserMessage{
		Message: "Too many requests", Action: "Please wait a moment before trying again",
		Code: "RATE001", Category: CategoryClient, Status: http.StatusTooManyRequests,
	}},
	{ErrTooManyComputations, UserMessage{
		Message: "The server is busy with other computations", Action: "Please wait a moment and try again",
		Code: "RUN003", Category: CategoryComputation, Status: http.StatusTooManyRequests,
	}},
	{ErrNoFile, UserMessage{
		Message: "No file was selected", Action: "Please select a CSV file to analyse",
		Code: "FILE004", Category: CategoryClient, Status: http.StatusBadRequest,
	}},
	{dataset.ErrInputTooLarge, UserMessage{
		Message: "File exceeds the maximum size limit", Action: "Upload a smaller file or sample the rows",
		Code: "FILE001", Category: CategoryClient, Status: http.StatusRequestEntityTooLarge,
	}},
	{dataset.ErrMalformedInput, UserMessage{
		Message: "File could not be read as a table", Action: "Ensure the file is a delimited text file with a header row",
		Code: "FILE002", Category: CategoryClient, Status: http.StatusBadRequest,
	}},
	{dataset.ErrInvalidParameter, UserMessage{
		Message: "Invalid parameters", Action: "Check the column names and parameter values",
		Code: "PARAM001", Category: CategoryClient, Status: http.StatusBadRequest,
	}},
	{dataset.ErrDegenerateModel, UserMessage{
		Message: "The model cannot score this query", Action: "Enable Laplace smoothing or choose different evidence",
		Code: "MODEL001", Category: CategoryComputation, Status: http.StatusUnprocessableEntity,
	}},
	{dataset.ErrSearchTooLarge, UserMessage{
		Message: "Too many attributes for an exhaustive reduct search", Action: "Select fewer condition attributes",
		Code: "SEARCH001", Category: CategoryComputation, Status: http.StatusUnprocessableEntity,
	}},
}

var (
	timeoutMessage = UserMessage{
		Message: "The computation timed out", Action: "Try a smaller table or fewer attributes",
		Code: "RUN002", Category: CategoryComputation, Status: http.StatusServiceUnavailable,
	}
	cancelledMessage = UserMessage{
		Message: "The computation was cancelled", Action: "Please try again",
		Code: "RUN001", Category: CategoryComputation, Status: http.StatusServiceUnavailable,
	}
)

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catches errors from outside the typed taxonomy, mostly
// multipart and form parsing.
var errorPatterns = []errorPattern{
	{"request body too large", UserMessage{
		Message: "File exceeds the maximum size limit", Action: "Upload a smaller file or sample the rows",
		Code: "FILE001", Category: CategoryClient, Status: http.StatusRequestEntityTooLarge,
	}},
	{"multipart", UserMessage{
		Message: "The upload could not be parsed", Action: "Send the file as multipart/form-data in the file field",
		Code: "FILE002", Category: CategoryClient, Status: http.StatusBadRequest,
	}},
	{"utf-8", UserMessage{
		Message: "File contains invalid characters", Action: "Save the file as UTF-8",
		Code: "FILE003", Category: CategoryClient, Status: http.StatusBadRequest,
	}},
	{"file is empty", UserMessage{
		Message: "The uploaded file is empty", Action: "Upload a file with a header row and data rows",
		Code: "FILE005", Category: CategoryClient, Status: http.StatusBadRequest,
	}},
}

var defaultMessage = UserMessage{
	Message:  "An unexpected error occurred",
	Action:   "Please try again or contact support",
	Code:     "ERR000",
	Category: CategoryInternal,
	Status:   http.StatusInternalServerError,
}

// MapError converts an error to a user-facing message. Known errors keep
// their text in Detail; unknown errors do not leak it.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if errors.Is(err, dataset.ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		msg := cancelledMessage
		if errors.Is(err, context.DeadlineExceeded) {
			msg = timeoutMessage
		}
		msg.Detail = err.Error()
		return msg
	}

	for _, te := range typedErrors {
		if errors.Is(err, te.target) {
			msg := te.msg
			msg.Detail = err.Error()
			if msg.Code == "FILE002" && strings.Contains(msg.Detail, "file is empty") {
				msg.Code = "FILE005"
				msg.Message = "The uploaded file is empty"
			}
			return msg
		}
	}

	lower := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(lower, ep.pattern) {
			msg := ep.msg
			msg.Detail = err.Error()
			return msg
		}
	}

	return defaultMessage
}

// HTTPStatus returns the response status for err.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return MapError(err).Status
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
