package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
)

// Problem types following RFC 7807
const (
	TypeNotFound         = "/errors/not-found"
	TypeMethodNotAllowed = "/errors/method-not-allowed"
	TypeInternal         = "/errors/internal"
	TypeServiceDown      = "/errors/service-unavailable"
	TypeTimeout          = "/errors/timeout"
	typeLoadPrefix       = "/errors/load/"
)

// ProblemDetails is an RFC 7807 response body
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// NewProblemDetails creates a problem response
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:     problemType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// WithExtension adds a member to the response body
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	if pd.Extensions == nil {
		pd.Extensions = make(map[string]interface{})
	}
	pd.Extensions[key] = value
	return pd
}

// MarshalJSON flattens extensions into the top-level object
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := map[string]interface{}{
		"type":   pd.Type,
		"title":  pd.Title,
		"status": pd.Status,
	}
	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}
	for k, v := range pd.Extensions {
		data[k] = v
	}
	return json.Marshal(data)
}

// ProblemFromError describes err as a problem with the given status. Load
// errors keep their type and column; cancellation maps to a timeout.
func ProblemFromError(status int, err error, instance string) *ProblemDetails {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout, "Timeout", err.Error(), instance)
	}

	var loadErr *LoadError
	if stderrors.As(err, &loadErr) {
		pd := NewProblemDetails(status, typeLoadPrefix+string(loadErr.Type), "Load Failed", loadErr.Error(), instance)
		if loadErr.Column != "" {
			pd.WithExtension("column", loadErr.Column)
		}
		return pd
	}

	return NewProblemDetails(status, TypeInternal, http.StatusText(status), err.Error(), instance)
}

// RenderProblem writes pd as an application/problem+json response
func RenderProblem(w http.ResponseWriter, r *http.Request, pd *ProblemDetails) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(pd.Status)
	_ = json.NewEncoder(w).Encode(pd)
}

// NotFound renders a 404 problem; suitable for chi's NotFound hook
func NotFound(w http.ResponseWriter, r *http.Request) {
	RenderProblem(w, r, NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found", "", r.URL.Path))
}

// MethodNotAllowed renders a 405 problem
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	RenderProblem(w, r, NewProblemDetails(http.StatusMethodNotAllowed, TypeMethodNotAllowed, "Method Not Allowed", "", r.URL.Path))
}
