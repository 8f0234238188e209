package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/MimeLyc/live-caption-history/internal/config"
	"github.com/MimeLyc/live-caption-history/internal/history"
)

type captionRequest struct {
	Speaker    string `json:"speaker"`
	Text       string `json:"text"`
	Original   string `json:"original"`
	Translated string `json:"translated"`
}

func (r captionRequest) caption() history.Caption {
	text := r.Text
	if text == "" {
		text = r.Original
	}
	return history.Caption{
		Speaker:    r.Speaker,
		Original:   text,
		Translated: r.Translated,
	}
}

// liveResponse is the wire form of the live buffer. Times are milliseconds
// since the epoch, like history entries, and zero while idle.
type liveResponse struct {
	Speaker    string `json:"speaker"`
	Original   string `json:"original"`
	Translated string `json:"translated"`
	StartTime  int64  `json:"startTime"`
	LastUpdate int64  `json:"lastUpdate"`
	Idle       bool   `json:"idle"`
}

func newLiveResponse(buf history.LiveBuffer) liveResponse {
	res := liveResponse{
		Speaker:    buf.Speaker,
		Original:   buf.Original,
		Translated: buf.Translated,
		Idle:       buf.IsIdle(),
	}
	if !buf.StartTime.IsZero() {
		res.StartTime = buf.StartTime.UnixMilli()
	}
	if !buf.LastUpdate.IsZero() {
		res.LastUpdate = buf.LastUpdate.UnixMilli()
	}
	return res
}

func (s *Server) handleCaptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req captionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	writeJSON(w, http.StatusOK, s.session.Ingest(r.Context(), req.caption()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	manager := s.session.History()
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, manager.History())
	case http.MethodDelete:
		manager.ClearHistory()
		writeJSON(w, http.StatusOK, map[string]any{
			"ok": true,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	manager := s.session.History()
	manager.ForceFinalize()
	writeJSON(w, http.StatusOK, manager.History())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	format, err := history.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	content, err := s.session.History().ExportHistory(format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	contentType, ext := exportContentType(format)
	filename := fmt.Sprintf("meeting-history-%s.%s", s.now().Format("2006-01-02"), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}

func exportContentType(format history.ExportFormat) (string, string) {
	switch format {
	case history.FormatText:
		return "text/plain; charset=utf-8", "txt"
	case history.FormatMarkdown:
		return "text/markdown; charset=utf-8", "md"
	case history.FormatSRT:
		return "application/x-subrip; charset=utf-8", "srt"
	default:
		return "application/json", "json"
	}
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, newLiveResponse(s.session.History().LiveBuffer()))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.session.Stats())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if s.settings == nil {
			writeJSON(w, http.StatusOK, config.RuntimeSettingsFromFilter(s.session.Filter().Settings()))
			return
		}
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		if s.settings == nil {
			writeError(w, http.StatusNotImplemented, "settings store is not configured")
			return
		}
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
		s.session.Filter().UpdateSettings(saved.FilterSettings())
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
		"error": strings.TrimSpace(msg),
	})
}
