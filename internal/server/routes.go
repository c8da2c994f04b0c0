package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hyperboria-dev/cjdns/internal/admin"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "OK",
		"time":          time.Now().Format("2006-01-02 15:04:05"),
		"subscriptions": s.broadcaster.Len(),
	})
}

func (s *Server) getFunctions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.admin.Functions())
}

// callRequest is the body of POST /admin/call.
type callRequest struct {
	Function string     `json:"q"`
	TxID     string     `json:"txid"`
	Args     admin.Args `json:"args"`
}

func (s *Server) postCall(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Function == "" {
		writeError(w, http.StatusBadRequest, "Missing function name")
		return
	}
	if req.TxID == "" {
		req.TxID = uuid.New().String()
	}
	if req.Args == nil {
		req.Args = admin.Args{}
	}

	operator := "anonymous"
	if c := claimsFrom(r); c != nil {
		operator = c.Subject
	}
	s.logger.Debug("admin call", "function", req.Function, "txid", req.TxID, "operator", operator)

	resp, err := s.admin.Call(req.Function, req.Args, req.TxID)
	var argErr *admin.ArgError
	switch {
	case errors.Is(err, admin.ErrUnknownFunction):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, admin.ErrBusyTransaction):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.As(err, &argErr):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("admin call failed", "function", req.Function, "txid", req.TxID, "error", err)
		writeError(w, http.StatusInternalServerError, "Call failed")
		return
	}

	w.Header().Set("X-Txid", req.TxID)
	writeJSON(w, http.StatusOK, resp)
}

// getStream relays every push addressed to ?txid= as server-sent events
// until the client goes away.
func (s *Server) getStream(w http.ResponseWriter, r *http.Request) {
	txid := r.URL.Query().Get("txid")
	if txid == "" {
		writeError(w, http.StatusBadRequest, "Missing txid")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	msgs, detach := s.streams.Attach(txid)
	defer detach()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case msg := <-msgs:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"broadcaster": s.broadcaster.Stats(),
		"streams": map[string]any{
			"listeners": s.streams.Listeners(),
			"dropped":   s.streams.Dropped(),
		},
	})
}

type subscriptionView struct {
	StreamID string `json:"streamId"`
	Level    string `json:"level"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	TxID     string `json:"txid"`
}

func (s *Server) getSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs := s.broadcaster.Subscriptions()
	out := make([]subscriptionView, len(subs))
	for i, sub := range subs {
		out[i] = subscriptionView{
			StreamID: sub.StreamID.String(),
			Level:    sub.Level.String(),
			File:     sub.File,
			Line:     sub.Line,
			TxID:     sub.TxID,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	events, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read audit log", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read audit log")
		return
	}
	writeJSON(w, http.StatusOK, events)
}
