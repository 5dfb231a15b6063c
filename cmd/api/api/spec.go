package api

import (
	"net/http"

	companion "github.com/onkernel/workspace-companion"
	"github.com/onkernel/workspace-companion/lib/logger"
)

func (s *ApiService) handleSpecYAML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.oai.openapi")
	w.Write(companion.OpenAPIYAML)
}

func (s *ApiService) handleSpecJSON(w http.ResponseWriter, r *http.Request) {
	jsonData, err := companion.OpenAPIJSON()
	if err != nil {
		http.Error(w, "failed to convert YAML to JSON", http.StatusInternalServerError)
		logger.FromContext(r.Context()).Error("failed to convert YAML to JSON", "err", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(jsonData)
}
