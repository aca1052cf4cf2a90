package api

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/Harvey-AU/url-content-fetcher/internal/controlplane"
	"github.com/Harvey-AU/url-content-fetcher/internal/store"
)

// Version is the current API version (set via ldflags at build time).
var Version = "0.1.0"

var hexID = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Handler holds the dependencies every url-content endpoint needs.
type Handler struct {
	CP   *controlplane.ControlPlane
	Repo store.Repository
}

// NewHandler builds a Handler over the given control plane and its
// repository.
func NewHandler(cp *controlplane.ControlPlane) *Handler {
	return &Handler{CP: cp, Repo: cp.Repo}
}

// RegisterRoutes wires every /api/url-content/* route plus /health onto mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/api/url-content/by-url", h.ByURL)
	mux.HandleFunc("/api/url-content/latest", h.Latest)
	mux.HandleFunc("/api/url-content/fix-inconsistencies", h.FixInconsistencies)
	mux.HandleFunc("/api/url-content/", h.Collection)
}

// HealthCheck handles basic liveness requests.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}
	WriteHealthy(w, r, "url-content-fetcher", Version)
}

type submitRequest struct {
	URLs []string `json:"urls"`
}

// Collection handles POST / (submit) and GET /?limit&offset (list), plus
// GET /:id for a single record, all under the /api/url-content/ prefix.
func (h *Handler) Collection(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/url-content/")

	if rest == "" {
		switch r.Method {
		case http.MethodPost:
			h.submit(w, r)
		case http.MethodGet:
			h.list(w, r)
		default:
			MethodNotAllowed(w, r)
		}
		return
	}

	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}
	h.byID(w, r, rest)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		BadRequest(w, r, "Invalid JSON body")
		return
	}
	if len(body.URLs) == 0 || len(body.URLs) > 100 {
		BadRequest(w, r, "urls must contain between 1 and 100 entries")
		return
	}
	for _, u := range body.URLs {
		if strings.TrimSpace(u) == "" {
			BadRequest(w, r, "urls must not contain an empty entry")
			return
		}
	}

	result := h.CP.Submit(r.Context(), body.URLs)
	WriteSuccess(w, r, result, "Submission processed")
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	offset := 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxListLimit {
			BadRequest(w, r, "limit must be a positive integer up to 500")
			return
		}
		limit = parsed
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			BadRequest(w, r, "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	records, err := h.Repo.FindAll(r.Context(), store.ListFilter{}, limit, offset)
	if err != nil {
		InternalError(w, r, err)
		return
	}
	WriteSuccess(w, r, records, "Records retrieved")
}

func (h *Handler) byID(w http.ResponseWriter, r *http.Request, id string) {
	if !hexID.MatchString(id) {
		BadRequest(w, r, "id must be a 24-character hex string")
		return
	}

	rec, err := h.Repo.FindByID(r.Context(), id)
	if err == store.ErrNotFound {
		NotFound(w, r, "No record found for id")
		return
	}
	if err != nil {
		InternalError(w, r, err)
		return
	}
	WriteSuccess(w, r, rec, "Record retrieved")
}

type historyResponse struct {
	URL          string               `json:"url"`
	TotalScrapes int                  `json:"totalScrapes"`
	Scrapes      []*store.FetchRecord `json:"scrapes"`
}

// ByURL returns every record for a URL, newest first.
func (h *Handler) ByURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	rawURL := r.URL.Query().Get("url")
	if strings.TrimSpace(rawURL) == "" {
		BadRequest(w, r, "url query parameter is required")
		return
	}

	records, err := h.Repo.GetHistory(r.Context(), rawURL)
	if err != nil {
		InternalError(w, r, err)
		return
	}

	WriteSuccess(w, r, historyResponse{
		URL:          rawURL,
		TotalScrapes: len(records),
		Scrapes:      records,
	}, "History retrieved")
}

// Latest returns the most recent SUCCESS record for a URL.
func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	rawURL := r.URL.Query().Get("url")
	if strings.TrimSpace(rawURL) == "" {
		BadRequest(w, r, "url query parameter is required")
		return
	}

	rec, err := h.Repo.FindLatestSuccessByURL(r.Context(), rawURL)
	if err == store.ErrNotFound {
		NotFound(w, r, "No successful scrape found for url")
		return
	}
	if err != nil {
		InternalError(w, r, err)
		return
	}
	WriteSuccess(w, r, rec, "Latest record retrieved")
}

// FixInconsistencies runs the invariant-repair sweep on demand.
func (h *Handler) FixInconsistencies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, r)
		return
	}

	fixed, err := h.CP.RepairInconsistencies(r.Context())
	if err != nil {
		InternalError(w, r, err)
		return
	}

	WriteSuccess(w, r, map[string]any{
		"fixed": fixed,
	}, "Consistency sweep complete")
}
