// Package errors defines RFC 7807 problem-details payloads for the HTTP
// API. Every non-2xx response carries a Problem body so clients can branch
// on the type URI instead of parsing detail strings.
package errors

import (
	"fmt"
	"net/http"
)

const typePrefix = "https://modelwatch.dev/problems/"

// Problem is an RFC 7807 problem details object.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func (p *Problem) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WithInstance returns a copy of the problem tagged with the request path.
func (p *Problem) WithInstance(instance string) *Problem {
	out := *p
	out.Instance = instance
	return &out
}

func newProblem(status int, slug, title, detail string) *Problem {
	return &Problem{
		Type:   typePrefix + slug,
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// Validation reports a malformed request body or parameter.
func Validation(detail string) *Problem {
	return newProblem(http.StatusBadRequest, "validation", "Invalid request", detail)
}

// NotFound reports a missing resource.
func NotFound(detail string) *Problem {
	return newProblem(http.StatusNotFound, "not-found", "Resource not found", detail)
}

// CycleInFlight reports that a drift cycle or rollback already holds the
// active-model slot.
func CycleInFlight(detail string) *Problem {
	return newProblem(http.StatusConflict, "cycle-in-flight", "Lifecycle cycle in flight", detail)
}

// NoBaseline reports that drift analysis cannot run without a reference
// snapshot.
func NoBaseline(detail string) *Problem {
	return newProblem(http.StatusPreconditionFailed, "no-baseline", "No baseline captured", detail)
}

// Unprocessable reports a request that is well-formed but cannot be applied.
func Unprocessable(detail string) *Problem {
	return newProblem(http.StatusUnprocessableEntity, "unprocessable", "Request cannot be applied", detail)
}

// NoActiveModel reports that the serving pointer is empty.
func NoActiveModel(detail string) *Problem {
	return newProblem(http.StatusServiceUnavailable, "no-active-model", "No active model", detail)
}

// Internal reports an unexpected failure.
func Internal(detail string) *Problem {
	return newProblem(http.StatusInternalServerError, "internal", "Internal error", detail)
}
