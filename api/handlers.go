package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-price-scout/aggregator"
	"github.com/aluiziolira/go-price-scout/models"
)

// headerSearchMode overrides the search mode when the body leaves it empty.
// "google" is accepted as an alias of the search-engine mode.
const headerSearchMode = "X-Search-Mode"

const maxBodyBytes = 1 << 16

type searchResponse struct {
	*models.AggregationResult
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSearch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Mode == "" {
		req.Mode = modeFromHeader(r.Header.Get(headerSearchMode))
	}

	result, err := s.svc.Search(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			slog.Error("search failed", slog.String("query", req.ProductName), slog.Any("error", err))
			writeError(w, status, "Internal server error. Please try again later.")
			return
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{AggregationResult: result, Timestamp: s.now().UTC()})
}

func decodeSearch(r *http.Request) (models.SearchRequest, error) {
	var req models.SearchRequest
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req.ProductName = q.Get("productName")
		req.Country = q.Get("country")
		req.Mode = q.Get("mode")
		if v := q.Get("maxResults"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return req, errors.New("maxResults must be an integer")
			}
			req.MaxResults = n
		}
		lo, err := floatParam(q.Get("minPrice"))
		if err != nil {
			return req, errors.New("minPrice must be a number")
		}
		hi, err := floatParam(q.Get("maxPrice"))
		if err != nil {
			return req, errors.New("maxPrice must be a number")
		}
		if lo != nil || hi != nil {
			req.PriceRange = &models.PriceRange{Min: lo, Max: hi}
		}
		return req, nil
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return req, errors.New("request body must be a JSON search request")
	}
	return req, nil
}

func floatParam(v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func modeFromHeader(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return ""
	case "google", models.ModeSearchEngine:
		return models.ModeSearchEngine
	case models.ModeDirect:
		return models.ModeDirect
	default:
		return v
	}
}

func (s *Server) handleCountries(w http.ResponseWriter, _ *http.Request) {
	countries := s.svc.SupportedCountries()
	writeJSON(w, http.StatusOK, struct {
		Countries []aggregator.CountryInfo `json:"countries"`
		Total     int                      `json:"total"`
	}{countries, len(countries)})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
		"timestamp": s.now().UTC(),
	})
}
