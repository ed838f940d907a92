package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/MimeLyc/timeline-renderer/internal/config"
	"github.com/MimeLyc/timeline-renderer/internal/jobs"
	"github.com/MimeLyc/timeline-renderer/internal/storage"
	"github.com/MimeLyc/timeline-renderer/internal/template"
	"github.com/MimeLyc/timeline-renderer/pkg/icron"
	"github.com/MimeLyc/timeline-renderer/pkg/log"
)

type renderResponse struct {
	JobID string `json:"jobId"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxBodyBytes)
	var req template.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if len(req.Template.Timeline) == 0 && req.Template.Canvas == (template.Canvas{}) {
		writeError(w, http.StatusBadRequest, "template is required")
		return
	}

	job := s.queue.Enqueue(jobs.EnqueueRequest{
		RecordID: req.ProjectID,
		Request:  &req,
	})
	log.Info("job=%s accepted blocks=%d user=%q template=%q project=%q source=%q",
		job.ID, len(req.Template.Timeline), req.UserID, req.TemplateID, req.ProjectID, req.Source)
	writeJSON(w, http.StatusOK, renderResponse{JobID: job.ID})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.secret == "" {
		return true
	}
	got := r.Header.Get(SecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) == 1
}

type statusResponse struct {
	ID       string      `json:"id"`
	Status   jobs.Status `json:"status"`
	Progress int         `json:"progress"`
	URL      string      `json:"url,omitempty"`
	Error    string      `json:"error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/status/")
	if decoded, err := url.PathUnescape(id); err == nil {
		id = decoded
	}
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	job, ok := s.queue.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		ID:       job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		URL:      job.URL,
		Error:    job.Error,
	})
}

type uploadResponse struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	name, err := s.layout.SaveUpload(file, header.Filename)
	if err != nil {
		log.Error("upload %q failed: %v", header.Filename, err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	log.Info("stored upload %q as %s (%d bytes)", header.Filename, name, header.Size)
	writeJSON(w, http.StatusOK, uploadResponse{
		Path:     storage.UploadsPrefix + name,
		Filename: name,
	})
}

type healthResponse struct {
	Status    string              `json:"status"`
	Time      time.Time           `json:"time"`
	Jobs      map[jobs.Status]int `json:"jobs"`
	Memory    *memoryStats        `json:"memory,omitempty"`
	Load      *loadStats          `json:"load,omitempty"`
	NextSweep *icron.TriggerInfo  `json:"nextSweep,omitempty"`
}

type memoryStats struct {
	Total       uint64  `json:"total"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"usedPercent"`
}

type loadStats struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := time.Now()
	resp := healthResponse{
		Status: "ok",
		Time:   now.UTC(),
		Jobs:   make(map[jobs.Status]int),
	}
	for _, job := range s.queue.List() {
		resp.Jobs[job.Status]++
	}
	if vm, err := mem.VirtualMemoryWithContext(r.Context()); err == nil {
		resp.Memory = &memoryStats{Total: vm.Total, Available: vm.Available, UsedPercent: vm.UsedPercent}
	}
	if avg, err := load.AvgWithContext(r.Context()); err == nil {
		resp.Load = &loadStats{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}
	}
	if s.sweepCron != nil {
		if info, err := icron.GetTriggerInfo(s.sweepCron(), now); err == nil {
			resp.NextSweep = info
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.queue.List())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		log.Info("runtime settings updated: preset=%s crf=%d sweep=%q", saved.EncodePreset, saved.EncodeCRF, saved.SweepCron)
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
