package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/insight-api/internal/cache"
	"github.com/sells-group/insight-api/internal/chat"
	"github.com/sells-group/insight-api/internal/model"
	"github.com/sells-group/insight-api/internal/monitoring"
)

type analyzeRequest struct {
	URL       string   `json:"url"`
	Questions []string `json:"questions,omitempty"`
}

type analyzeResponse struct {
	URL       string                   `json:"url"`
	Status    model.AnalysisStatus     `json:"status"`
	Insights  map[string]model.Insight `json:"insights"`
	Timestamp time.Time                `json:"timestamp"`
}

type chatRequest struct {
	URL     string      `json:"url"`
	Query   string      `json:"query"`
	History []chat.Turn `json:"conversation_history,omitempty"`
}

type chatResponse struct {
	URL        string    `json:"url"`
	Query      string    `json:"query"`
	Response   string    `json:"response"`
	UsedChunks []string  `json:"used_chunks,omitempty"`
	Augmented  bool      `json:"augmented"`
	Timestamp  time.Time `json:"timestamp"`
}

type statsResponse struct {
	Metrics monitoring.MetricsSnapshot `json:"metrics"`
	Cache   cache.Stats                `json:"cache"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if _, err := cache.Canonicalize(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	rec, err := s.pipeline.Analyze(r.Context(), req.URL, req.Questions, refresh)
	if err != nil {
		writeError(w, http.StatusBadGateway, "analysis unavailable for this URL: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		URL:       rec.Key,
		Status:    rec.Status,
		Insights:  rec.Insights,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	res, err := s.engine.Ask(r.Context(), req.URL, req.Query, req.History)
	switch {
	case errors.Is(err, chat.ErrNoAnalysis):
		writeError(w, http.StatusNotFound, "no analysis for this url, analyze it first")
		return
	case errors.Is(err, chat.ErrNotReady):
		writeError(w, http.StatusConflict, "analysis still building, retry shortly")
		return
	case errors.Is(err, chat.ErrAnalysisFailed):
		writeError(w, http.StatusConflict, "analysis failed, re-analyze this url first")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "chat turn failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		URL:        req.URL,
		Query:      req.Query,
		Response:   res.Answer,
		UsedChunks: res.UsedChunkIDs,
		Augmented:  res.State == chat.StateAugmented,
		Timestamp:  time.Now().UTC(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Metrics: s.metrics.Snapshot(),
		Cache:   s.analyses.Stats(),
	})
}
