package api

import (
	"net/http"
	"strconv"

	"github.com/MrWong99/renoquote/internal/quote"
	"github.com/MrWong99/renoquote/pkg/types"
)

// ProposalRequest is the body of POST /v1/proposals.
type ProposalRequest struct {
	Transcript  string `json:"transcript"`
	UserType    string `json:"user_type"`
	Region      string `json:"region,omitempty"`
	ProjectType string `json:"project_type,omitempty"`
}

// RevisionRequest is the body of POST /v1/quotes/{id}/revisions.
type RevisionRequest struct {
	Transcript string `json:"transcript"`
}

// QuoteList is the body of GET /v1/quotes.
type QuoteList struct {
	Quotes []quote.Quote `json:"quotes"`
}

func (s *Server) generateProposal(w http.ResponseWriter, r *http.Request) {
	var body ProposalRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	q, err := s.proposals.Generate(r.Context(), quote.Request{
		Transcript:  body.Transcript,
		UserType:    body.UserType,
		Region:      body.Region,
		ProjectType: body.ProjectType,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("Location", "/v1/quotes/"+q.ID)
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) getQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.quotes.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) headQuote(w http.ResponseWriter, r *http.Request) {
	ok, err := s.quotes.Exists(r.Context(), r.PathValue("id"))
	switch {
	case err != nil:
		w.WriteHeader(statusFor(err))
	case !ok:
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) listQuotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := quote.ListOptions{Region: q.Get("region")}
	if v := q.Get("user_type"); v != "" {
		u, err := types.ParseUserType(v)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		opts.UserType = u
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(r.Context(), w, types.NewValidationError("limit", v, errNotANumber))
			return
		}
		opts.Limit = n
	}
	quotes, err := s.quotes.List(r.Context(), opts)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if quotes == nil {
		quotes = []quote.Quote{}
	}
	writeJSON(w, http.StatusOK, QuoteList{Quotes: quotes})
}

func (s *Server) reviseQuote(w http.ResponseWriter, r *http.Request) {
	var body RevisionRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	q, err := s.proposals.Revise(r.Context(), r.PathValue("id"), body.Transcript)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("Location", "/v1/quotes/"+q.ID)
	writeJSON(w, http.StatusCreated, q)
}
