package handlers

import (
	"net/http"

	"github.com/agentstation/swarmcast/internal/embedded/openapi"
	"github.com/agentstation/swarmcast/internal/server/response"
)

const openAPICacheControl = "public, max-age=3600"

// HandleOpenAPIJSON serves the embedded OpenAPI 3.1 document as JSON.
// @Summary Get OpenAPI document (JSON)
// @Description Returns the OpenAPI 3.1 document for this API in JSON format
// @Tags meta
// @Produce json
// @Success 200 {object} object "OpenAPI 3.1 document"
// @Router /api/v1/openapi.json [get].
func (h *Handlers) HandleOpenAPIJSON(w http.ResponseWriter, _ *http.Request) {
	spec, err := openapi.SpecJSON()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to convert OpenAPI document")
		response.InternalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", openAPICacheControl)
	_, _ = w.Write(spec)
}

// HandleOpenAPIYAML serves the embedded OpenAPI 3.1 document as YAML.
// @Summary Get OpenAPI document (YAML)
// @Description Returns the OpenAPI 3.1 document for this API in YAML format
// @Tags meta
// @Produce application/x-yaml
// @Success 200 {string} string "OpenAPI 3.1 document"
// @Router /api/v1/openapi.yaml [get].
func (h *Handlers) HandleOpenAPIYAML(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/x-yaml")
	w.Header().Set("Cache-Control", openAPICacheControl)
	_, _ = w.Write(openapi.SpecYAML)
}
