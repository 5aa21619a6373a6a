package server

import (
	"net/http"
	"strconv"

	"shipquote/internal/status"
)

type providerListResponse struct {
	Providers []Provider `json:"providers"`
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers := s.providers
	if providers == nil {
		providers = []Provider{}
	}
	writeJSON(w, http.StatusOK, providerListResponse{Providers: providers})
}

// handleProviderStatus reports carrier health. X-Poll-Interval tells clients
// how many seconds to wait between polls.
func (s *Server) handleProviderStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Poll-Interval", strconv.Itoa(int(status.PollInterval.Seconds())))
	writeJSON(w, http.StatusOK, s.monitor.Snapshot())
}
