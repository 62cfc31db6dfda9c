package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/afinia/internal/orchestrator"
	"github.com/danielpatrickdp/afinia/internal/params"
	"github.com/danielpatrickdp/afinia/internal/signals"
	"github.com/danielpatrickdp/afinia/internal/state"
	"github.com/danielpatrickdp/afinia/internal/update"
)

const defaultUser = "default"

// #region payloads
type chatRequest struct {
	Message string `json:"message"`
	Mensaje string `json:"mensaje"`
	UserID  string `json:"userId"`
}

type chatResponse struct {
	Reply      string          `json:"reply"`
	Respuesta  string          `json:"respuesta,omitempty"`
	Parameters params.Set      `json:"parameters,omitempty"`
	Changes    []update.Change `json:"changes"`
	TurnID     string          `json:"turnId,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// #endregion payloads

// #region basic
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "OK")
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "AfinIA backend OK")
}

func (s *Server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, signals.Schema(s.mode))
}

// #endregion basic

// #region parameters
func (s *Server) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	s.getParameters(w, r, r.PathValue("userID"))
}

func (s *Server) handlePutParameters(w http.ResponseWriter, r *http.Request) {
	raw, err := s.decodeObject(w, r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	s.saveParameters(w, r, r.PathValue("userID"), raw, false)
}

func (s *Server) handleLegacyGetParameters(w http.ResponseWriter, r *http.Request) {
	s.getParameters(w, r, legacyUser(r.URL.Query().Get("userId")))
}

func (s *Server) handleLegacySaveParameters(w http.ResponseWriter, r *http.Request) {
	raw, err := s.decodeObject(w, r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	user := r.URL.Query().Get("userId")
	if v, ok := raw["userId"].(string); ok {
		if user == "" {
			user = v
		}
		delete(raw, "userId")
	}
	s.saveParameters(w, r, legacyUser(user), raw, true)
}

func (s *Server) getParameters(w http.ResponseWriter, r *http.Request, userID string) {
	set, err := s.svc.Parameters(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) saveParameters(w http.ResponseWriter, r *http.Request, userID string, raw map[string]any, legacy bool) {
	set, err := s.svc.SaveParameters(r.Context(), userID, raw)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if legacy {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "parameters": set})
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// #endregion parameters

// #region chat
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.chat(w, r, false)
}

func (s *Server) handleLegacyChat(w http.ResponseWriter, r *http.Request) {
	s.chat(w, r, true)
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request, legacy bool) {
	var req chatRequest
	if err := s.decode(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	message := req.Message
	if message == "" {
		message = req.Mensaje
	}
	user := req.UserID
	if legacy {
		if user == "" {
			user = r.URL.Query().Get("userId")
		}
		user = legacyUser(user)
	}

	res, err := s.svc.Turn(r.Context(), orchestrator.TurnRequest{UserID: user, Message: message})
	if err != nil && res.Reply == "" {
		s.writeError(w, err)
		return
	}

	out := chatResponse{
		Reply:      res.Reply,
		Parameters: res.Parameters,
		Changes:    res.Changes,
		TurnID:     res.TurnID,
	}
	if out.Changes == nil {
		out.Changes = []update.Change{}
	}
	if legacy {
		out.Respuesta = res.Reply
	}
	if err != nil {
		// The reply was produced but persisting the new parameters failed.
		status, msg := classify(err)
		s.logger.Error("chat turn", zap.String("user", user), zap.Error(err))
		out.Error = msg
		writeJSON(w, status, out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// #endregion chat

// #region helpers
func legacyUser(id string) string {
	if id == "" {
		return defaultUser
	}
	return id
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (s *Server) decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	var raw map[string]any
	if err := s.decode(w, r, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("body must be a JSON object")
	}
	return raw, nil
}

// classify maps domain errors to a status and a message safe to show.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyMessage):
		return http.StatusBadRequest, "message is required"
	case errors.Is(err, state.ErrInvalidUser):
		return http.StatusBadRequest, "invalid userId"
	case errors.Is(err, state.ErrSaveFailed):
		return http.StatusInternalServerError, "could not save parameters"
	case errors.Is(err, orchestrator.ErrModelUnavailable), errors.Is(err, orchestrator.ErrEmptyCompletion):
		return http.StatusBadGateway, "error communicating with the model"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDecodeError answers 413 for a body over the size limit and 400 for
// anything else that failed to decode.
func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
		return
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// #endregion helpers
