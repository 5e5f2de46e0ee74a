package chi

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/retrio/internal/domain"
	"github.com/kailas-cloud/retrio/internal/domain/health"
	"github.com/kailas-cloud/retrio/internal/domain/query"
	"github.com/kailas-cloud/retrio/internal/domain/ranked"
	searchuc "github.com/kailas-cloud/retrio/internal/usecase/search"
)

// Error response codes.
const (
	codeBadRequest         = "bad_request"
	codeInvalidQuery       = "invalid_query"
	codeNoEligibleBackends = "no_eligible_backends"
	codeAllBackendsFailed  = "all_backends_failed"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Backends []backendFailure `json:"backends,omitempty"`
}

type backendFailure struct {
	Backend string `json:"backend"`
	Error   string `json:"error"`
}

type searchRequest struct {
	Query               string      `json:"query"`
	ContentTypes        []string    `json:"content_types,omitempty"`
	Filters             *filtersDTO `json:"filters,omitempty"`
	SimilarityThreshold float64     `json:"similarity_threshold,omitempty"`
	MaxResults          int         `json:"max_results,omitempty"`
	Language            string      `json:"language,omitempty"`
}

type filtersDTO struct {
	DateFrom   *time.Time `json:"date_from,omitempty"`
	DateTo     *time.Time `json:"date_to,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	Categories []string   `json:"categories,omitempty"`
	Sources    []string   `json:"sources,omitempty"`
}

// queryFromRequest validates the wire request into a domain query.
func queryFromRequest(req searchRequest) (query.Query, error) {
	types := make([]domain.ContentType, len(req.ContentTypes))
	for i, t := range req.ContentTypes {
		types[i] = domain.ContentType(t)
	}

	var filters query.Filters
	if f := req.Filters; f != nil {
		var from, to time.Time
		if f.DateFrom != nil {
			from = *f.DateFrom
		}
		if f.DateTo != nil {
			to = *f.DateTo
		}
		dates, err := query.NewDateRange(from, to)
		if err != nil {
			return query.Query{}, fmt.Errorf("%w: %s", domain.ErrInvalidQuery, err)
		}
		filters = query.NewFilters(dates, f.Tags, f.Categories, f.Sources)
	}

	return query.New(req.Query, types, filters, req.SimilarityThreshold, req.MaxResults, req.Language)
}

type searchResponse struct {
	Success     bool           `json:"success"`
	Results     []resultDTO    `json:"results"`
	Facets      facetsDTO      `json:"facets"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
	Analytics   analyticsDTO   `json:"analytics"`
}

type resultDTO struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Title      string   `json:"title"`
	Excerpt    string   `json:"excerpt"`
	Score      float64  `json:"score"`
	Backends   []string `json:"backends"`
	Rank       int      `json:"rank"`
	Highlights []string `json:"highlights,omitempty"`
}

type facetsDTO struct {
	Types      map[string]int `json:"types"`
	Sources    map[string]int `json:"sources"`
	Tags       map[string]int `json:"tags"`
	Categories map[string]int `json:"categories"`
	Dates      map[string]int `json:"dates"`
}

type analyticsDTO struct {
	TotalResults     int                `json:"total_results"`
	ProcessingTimeMS int64              `json:"processing_time_ms"`
	Backends         []backendTimingDTO `json:"backends"`
}

type backendTimingDTO struct {
	Backend    string `json:"backend"`
	ElapsedMS  int64  `json:"elapsed_ms"`
	Candidates int    `json:"candidates"`
	Failed     bool   `json:"failed,omitempty"`
}

func searchResponseToDTO(resp searchuc.Response) searchResponse {
	results := make([]resultDTO, len(resp.Results))
	for i := range resp.Results {
		results[i] = resultToDTO(&resp.Results[i])
	}

	timings := make([]backendTimingDTO, len(resp.Analytics.Backends))
	for i, bt := range resp.Analytics.Backends {
		timings[i] = backendTimingDTO{
			Backend:    bt.BackendID,
			ElapsedMS:  bt.Elapsed.Milliseconds(),
			Candidates: bt.Candidates,
			Failed:     bt.Failed,
		}
	}

	return searchResponse{
		Success:     resp.Success,
		Results:     results,
		Facets:      facetsToDTO(resp.Facets),
		Suggestions: resp.Suggestions,
		Warnings:    resp.Warnings,
		Analytics: analyticsDTO{
			TotalResults:     resp.Analytics.TotalResults,
			ProcessingTimeMS: resp.Analytics.ProcessingTime.Milliseconds(),
			Backends:         timings,
		},
	}
}

func resultToDTO(r *ranked.Result) resultDTO {
	return resultDTO{
		ID:         r.ContentID(),
		Type:       string(r.ContentType()),
		Title:      r.Title(),
		Excerpt:    r.Excerpt(),
		Score:      r.Score(),
		Backends:   r.Backends(),
		Rank:       r.Rank(),
		Highlights: r.Highlights(),
	}
}

func facetsToDTO(f ranked.Facets) facetsDTO {
	return facetsDTO{
		Types:      emptyIfNil(f.Types),
		Sources:    emptyIfNil(f.Sources),
		Tags:       emptyIfNil(f.Tags),
		Categories: emptyIfNil(f.Categories),
		Dates:      emptyIfNil(f.Dates),
	}
}

func emptyIfNil(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

type backendHealthDTO struct {
	Backend      string     `json:"backend"`
	Status       string     `json:"status"`
	LastProbe    *time.Time `json:"last_probe,omitempty"`
	LatencyP50MS int64      `json:"latency_p50_ms"`
	LatencyP99MS int64      `json:"latency_p99_ms"`
}

func healthSnapshotToDTO(snap health.Snapshot, backendIDs []string) []backendHealthDTO {
	out := make([]backendHealthDTO, 0, len(backendIDs))
	for _, id := range backendIDs {
		dto := backendHealthDTO{Backend: id, Status: string(health.Unknown)}
		if rec, ok := snap[id]; ok {
			dto.Status = string(rec.Status())
			if !rec.LastProbe().IsZero() {
				t := rec.LastProbe()
				dto.LastProbe = &t
			}
			dto.LatencyP50MS = rec.LatencyP50().Milliseconds()
			dto.LatencyP99MS = rec.LatencyP99().Milliseconds()
		}
		out = append(out, dto)
	}
	return out
}
