package effects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// requiresOK lists resources whose lookups count as found only with a truthy
// "ok". The others treat a missing "ok" as found and only "ok": false as not found.
var requiresOK = map[string]bool{
	models.ResourceTracking: true,
}

// MockAppointmentCode is returned by Create when the clinic API is not configured.
const MockAppointmentCode = "CITA-MOCK-12345"

// CreateResult is the answer of a record-creating API call.
type CreateResult struct {
	OK bool
	// ID is the identifier the API assigned, if any.
	ID string
}

// ExternalAPI is the vertical's CRM or tracking backend.
type ExternalAPI interface {
	Create(ctx context.Context, resource string, payload map[string]string) (CreateResult, error)
	Query(ctx context.Context, resource, reference string) (models.StatusResult, error)
}

// HTTPExternalAPI talks to per-resource JSON HTTP APIs. Resources without a
// configured base URL answer with canned mock data.
type HTTPExternalAPI struct {
	client   *http.Client
	baseURLs map[string]string
}

var _ ExternalAPI = (*HTTPExternalAPI)(nil)

// APIOption configures HTTPExternalAPI.
type APIOption func(*HTTPExternalAPI)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) APIOption {
	return func(a *HTTPExternalAPI) {
		if c != nil {
			a.client = c
		}
	}
}

// WithBaseURL routes a resource to a base URL. An empty URL keeps the mock.
func WithBaseURL(resource, baseURL string) APIOption {
	return func(a *HTTPExternalAPI) {
		if baseURL != "" {
			a.baseURLs[resource] = strings.TrimRight(baseURL, "/")
		}
	}
}

// NewHTTPExternalAPI creates the client.
func NewHTTPExternalAPI(opts ...APIOption) *HTTPExternalAPI {
	a := &HTTPExternalAPI{client: newHTTPClient(), baseURLs: map[string]string{}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Create posts a record to {base}/{resource}. The record counts as created
// only when the reply carries a truthy "ok"; its "codigo" becomes the ID.
// Anything else is reported as OK=false without an error.
func (a *HTTPExternalAPI) Create(ctx context.Context, resource string, payload map[string]string) (CreateResult, error) {
	base, ok := a.baseURLs[resource]
	if !ok {
		slog.Warn("HTTPExternalAPI.Create: base URL not configured, using mock", "resource", resource)
		return mockCreate(resource), nil
	}
	endpoint := base + "/" + resource
	body, err := doJSON(ctx, a.client, http.MethodPost, endpoint, payload)
	if err != nil {
		slog.Error("HTTPExternalAPI.Create: request failed", "resource", resource, "error", err)
		return CreateResult{}, fmt.Errorf("create %s: %w", resource, err)
	}
	res := CreateResult{OK: okFlag(body, false)}
	if res.OK {
		if s, ok := stringify(body["codigo"]); ok && s != "" {
			res.ID = s
		}
	}
	slog.Info("HTTPExternalAPI.Create: record created", "resource", resource, "ok", res.OK, "id", res.ID)
	return res, nil
}

// Query fetches {base}/{resource}/{reference}. A 404, "ok": false, an empty
// or non-JSON reply, or a missing "ok" on a resource in requiresOK is a
// not-found result; other failures are errors.
func (a *HTTPExternalAPI) Query(ctx context.Context, resource, reference string) (models.StatusResult, error) {
	base, ok := a.baseURLs[resource]
	if !ok {
		slog.Warn("HTTPExternalAPI.Query: base URL not configured, using mock", "resource", resource)
		return mockQuery(resource, reference), nil
	}
	endpoint := base + "/" + resource + "/" + url.PathEscape(reference)
	body, err := doJSON(ctx, a.client, http.MethodGet, endpoint, nil)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return models.StatusResult{}, nil
		}
		slog.Error("HTTPExternalAPI.Query: request failed", "resource", resource, "error", err)
		return models.StatusResult{}, fmt.Errorf("query %s: %w", resource, err)
	}
	if !okFlag(body, !requiresOK[resource]) {
		slog.Debug("HTTPExternalAPI.Query: not found", "resource", resource, "reference", reference, "json", body != nil)
		return models.StatusResult{}, nil
	}
	return statusFromBody(body), nil
}

func statusFromBody(body map[string]any) models.StatusResult {
	res := models.StatusResult{Found: true, Fields: map[string]string{}}
	for k, v := range body {
		switch k {
		case "ok":
			continue
		case "lat", "lng":
			continue
		}
		if s, ok := stringify(v); ok {
			res.Fields[k] = s
		}
	}
	lat, latOK := number(body["lat"])
	lng, lngOK := number(body["lng"])
	if latOK && lngOK && lat != 0 && lng != 0 {
		res.HasLocation = true
		res.Lat, res.Lng = lat, lng
	}
	return res
}

func mockCreate(resource string) CreateResult {
	if resource == models.ResourceAppointments {
		return CreateResult{OK: true, ID: MockAppointmentCode}
	}
	return CreateResult{OK: true}
}

func mockQuery(resource, reference string) models.StatusResult {
	switch resource {
	case models.ResourceAppointments:
		return models.StatusResult{Found: true, Fields: map[string]string{
			"estado": "Pendiente de confirmación",
			"fecha":  "Por confirmar",
			"medico": "Por asignar",
		}}
	case models.ResourceTracking:
		return models.StatusResult{
			Found: true,
			Fields: map[string]string{
				"codigo":               reference,
				"estado":               "En tránsito",
				"ultima_actualizacion": "Hoy",
				"ubicacion":            "Centro de distribución principal",
			},
			HasLocation: true,
			Lat:         -12.046374,
			Lng:         -77.042793,
		}
	default:
		return models.StatusResult{}
	}
}
