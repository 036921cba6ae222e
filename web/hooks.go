package web

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/typeshield/typeshield"
)

// handleHook dispatches an inbound IAM webhook to its bridge. The bridge
// owns the response format; the engine owns the flow.
func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("bridge")
	br, ok := s.bridges.Lookup(id)
	if !ok || !br.Enabled() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown bridge"})
		return
	}

	outcome, err := s.engine.HandleBridgeRequest(r.Context(), br, r)
	if err != nil {
		if errors.Is(err, typeshield.ErrUnauthorized) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		s.log.Warn("bridge request failed", zap.String("bridge", id), zap.Error(err))
		br.HandleError(w, err)
		return
	}

	if outcome.IsTest {
		br.HandleTest(w)
		return
	}
	br.HandleSuccess(w, r, outcome.CID)
}
