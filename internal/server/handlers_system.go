package server

import (
	"net/http"
)

type healthResponse struct {
	Status string `json:"status"`
}

type versionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Ready(r.Context()); err != nil {
		respondProblem(w, r, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, healthResponse{Status: "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, versionResponse{
		Version:   s.version,
		Commit:    s.commit,
		BuildDate: s.buildDate,
	})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if len(s.openapiSpec) == 0 {
		respondProblem(w, r, http.StatusNotFound, "openapi spec is not available")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.openapiSpec)
}
