package http

import "github.com/fyrsmithlabs/reposearch/internal/search"

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	Pattern search.PatternSpec `json:"pattern"`
	Repos   []string           `json:"repos"`
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse struct {
	SearchID string          `json:"search_id"`
	Matches  []MatchResponse `json:"matches"`
	Count    int             `json:"count"`
}

// CommitSearchRequest is the request body for POST /api/v1/search/commit.
type CommitSearchRequest struct {
	Pattern search.PatternSpec `json:"pattern"`
	Repo    string             `json:"repo"`
	Commit  string             `json:"commit"`
}

// CommitSearchResponse is the response body for POST /api/v1/search/commit.
type CommitSearchResponse struct {
	Matches []MatchResponse `json:"matches"`
	Count   int             `json:"count"`
}

// MatchResponse is one matched file.
type MatchResponse struct {
	Repo        string             `json:"repo"`
	Commit      string             `json:"commit"`
	Path        string             `json:"path"`
	URI         string             `json:"uri"`
	LineMatches []search.LineMatch `json:"line_matches"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the failure class and message.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Searcher  string `json:"searcher"`
	Telemetry string `json:"telemetry,omitempty"`
}

func toMatchResponses(matches []search.RepoMatch) []MatchResponse {
	out := make([]MatchResponse, len(matches))
	for i, m := range matches {
		lm := m.LineMatches
		if lm == nil {
			lm = []search.LineMatch{}
		}
		out[i] = MatchResponse{
			Repo:        m.Repo,
			Commit:      m.Commit,
			Path:        m.Path,
			URI:         m.URI(),
			LineMatches: lm,
		}
	}
	return out
}
