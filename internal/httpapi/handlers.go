package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/book-expert/tts-orchestrator/internal/catalog"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/orchestrator"
	"github.com/book-expert/tts-orchestrator/internal/tts/ttsutils"
	"github.com/go-chi/chi/v5"
)

// Multipart field names.
const (
	fieldText         = "text"
	fieldLanguage     = "language"
	fieldPreset       = "preset"
	fieldExaggeration = "exaggeration"
	fieldCFGWeight    = "cfg_weight"
	fieldSeed         = "seed"
	fieldRefAudio     = "ref_audio"
)

// generateRequest is the JSON body of POST /jobs. Omitted fields take the defaults.
type generateRequest struct {
	Text         string   `json:"text"`
	Language     string   `json:"language"`
	Preset       string   `json:"preset"`
	Exaggeration *float64 `json:"exaggeration"`
	CFGWeight    *float64 `json:"cfg_weight"`
	Seed         *int64   `json:"seed"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	params, err := s.decodeSubmit(w, r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	result, err := s.service.Submit(r.Context(), params)
	if err != nil {
		s.writeError(w, err)

		return
	}

	w.Header().Set("Location", "/jobs/"+result.JobID)
	s.writeJSON(w, http.StatusAccepted, result)
}

func (s *Server) decodeSubmit(w http.ResponseWriter, r *http.Request) (core.GenerationParameters, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data", "application/x-www-form-urlencoded":
		return s.decodeForm(w, r)
	default:
		return decodeJSON(http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes))
	}
}

func decodeJSON(body io.Reader) (core.GenerationParameters, error) {
	var req generateRequest

	err := json.NewDecoder(body).Decode(&req)
	if err != nil {
		return core.GenerationParameters{}, fmt.Errorf("%w: invalid JSON body: %w", core.ErrValidation, err)
	}

	params := core.NewGenerationParameters(strings.TrimSpace(req.Text))
	params.Language = req.Language
	params.Preset = req.Preset

	if req.Exaggeration != nil {
		params.Exaggeration = *req.Exaggeration
	}

	if req.CFGWeight != nil {
		params.CFGWeight = *req.CFGWeight
	}

	if req.Seed != nil {
		params.Seed = normalizeSeed(*req.Seed)
	}

	return params, nil
}

// decodeForm reads a form submission. An uploaded reference file is written to a temporary
// file owned by the job.
func (s *Server) decodeForm(w http.ResponseWriter, r *http.Request) (core.GenerationParameters, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	err := r.ParseMultipartForm(s.opts.MaxUploadBytes)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return core.GenerationParameters{}, fmt.Errorf("%w: invalid form: %w", core.ErrValidation, err)
	}

	params := core.NewGenerationParameters(strings.TrimSpace(r.FormValue(fieldText)))
	params.Language = r.FormValue(fieldLanguage)
	params.Preset = r.FormValue(fieldPreset)

	for _, field := range []struct {
		name   string
		target *float64
	}{
		{fieldExaggeration, &params.Exaggeration},
		{fieldCFGWeight, &params.CFGWeight},
	} {
		raw := strings.TrimSpace(r.FormValue(field.name))
		if raw == "" {
			continue
		}

		value, parseErr := strconv.ParseFloat(raw, 64)
		if parseErr != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			return params, fmt.Errorf("%w: %s must be a number", core.ErrValidation, field.name)
		}

		*field.target = value
	}

	if raw := strings.TrimSpace(r.FormValue(fieldSeed)); raw != "" {
		seed, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			return params, fmt.Errorf("%w: seed must be an integer", core.ErrValidation)
		}

		params.Seed = normalizeSeed(seed)
	}

	if r.MultipartForm == nil || len(r.MultipartForm.File[fieldRefAudio]) == 0 {
		return params, nil
	}

	path, err := saveReference(r)
	if err != nil {
		return params, err
	}

	params.ReferenceAudioPath = path
	params.OwnsReferenceAudio = true

	return params, nil
}

func saveReference(r *http.Request) (string, error) {
	file, header, err := r.FormFile(fieldRefAudio)
	if err != nil {
		return "", fmt.Errorf("%w: reference audio: %w", core.ErrValidation, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("%w: reference audio: %w", core.ErrValidation, err)
	}

	return ttsutils.WriteTempReference(header.Filename, data)
}

// normalizeSeed maps any negative seed onto the random-seed sentinel.
func normalizeSeed(seed int64) int64 {
	if seed < 0 {
		return core.RandomSeed
	}

	return seed
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.service.Download(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)

		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": ttsutils.SanitizeFilename(artifact.Filename)}))
	w.WriteHeader(http.StatusOK)

	_, writeErr := w.Write(artifact.Data)
	if writeErr != nil && s.log != nil {
		s.log.Warn("Failed to stream %s: %v", artifact.Filename, writeErr)
	}
}

type healthResponse struct {
	Status string `json:"status"`
	orchestrator.HealthReport
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", HealthReport: s.service.Health()})
}

type unloadResponse struct {
	Status   string `json:"status"`
	Unloaded bool   `json:"unloaded"`
}

func (s *Server) handleUnload(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, unloadResponse{Status: "ok", Unloaded: s.service.Unload()})
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]catalog.Language{"languages": catalog.Languages()})
}

func (s *Server) handlePresets(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]catalog.Preset{"presets": catalog.Presets()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := DefaultHistoryLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, fmt.Errorf("%w: limit must be a positive integer", core.ErrValidation))

			return
		}

		limit = parsed
	}

	records, err := s.service.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if records == nil {
		records = []core.HistoryRecord{}
	}

	s.writeJSON(w, http.StatusOK, map[string][]core.HistoryRecord{"history": records})
}
