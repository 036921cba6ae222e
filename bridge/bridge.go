// Package bridge adapts IAM platform webhooks to the challenge engine.
// Each bridge knows one vendor's payload shape, auth scheme and expected
// response format; the registry maps webhook path segments to bridges.
package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/typeshield/typeshield"
)

// Registry holds the registered bridges keyed by their webhook path
// segment. Bridges are registered explicitly at startup; there is no
// directory scanning or dynamic loading.
type Registry struct {
	bridges map[string]typeshield.Bridge
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{bridges: map[string]typeshield.Bridge{}}
}

// Register adds a bridge. Duplicate ids are rejected; disabled bridges
// are accepted but skipped by Active.
func (r *Registry) Register(b typeshield.Bridge) error {
	if b == nil || b.ID() == "" {
		return fmt.Errorf("bridge must carry an id")
	}
	if _, exists := r.bridges[b.ID()]; exists {
		return fmt.Errorf("duplicate bridge id %q", b.ID())
	}
	r.bridges[b.ID()] = b
	return nil
}

// Lookup resolves a webhook path segment to its bridge.
func (r *Registry) Lookup(id string) (typeshield.Bridge, bool) {
	b, ok := r.bridges[id]
	return b, ok
}

// Active returns the enabled bridges in deterministic order.
func (r *Registry) Active() []typeshield.Bridge {
	ids := make([]string, 0, len(r.bridges))
	for id, b := range r.bridges {
		if b.Enabled() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	active := make([]typeshield.Bridge, 0, len(ids))
	for _, id := range ids {
		active = append(active, r.bridges[id])
	}
	return active
}

// decodeBody unmarshals the request body into dst, restoring the body
// afterwards so a bridge can read it again from another accessor.
func decodeBody(r *http.Request, dst any) bool {
	if r.Body == nil {
		return false
	}
	data, err := io.ReadAll(r.Body)
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil || len(data) == 0 {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeDeliveryError is the shared 502 body for SMS delivery failures.
func writeDeliveryError(w http.ResponseWriter, err error) {
	msg := "Downstream SMS send failed"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": msg})
}
