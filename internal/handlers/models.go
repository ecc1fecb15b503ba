package handlers

import (
	"net/http"

	"promptgate/internal/llm"
)

// Catalog lists the public models.
type Catalog interface {
	List() []llm.Model
}

type modelView struct {
	ID          string `json:"id"`
	Provider    string `json:"provider"`
	DisplayName string `json:"display_name"`
	Thinking    bool   `json:"thinking,omitempty"`
}

type modelList struct {
	Object string      `json:"object"`
	Data   []modelView `json:"data"`
}

// ModelsHandler serves GET /v1/models.
type ModelsHandler struct {
	Catalog Catalog
}

func NewModelsHandler(c Catalog) *ModelsHandler {
	return &ModelsHandler{Catalog: c}
}

func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	models := h.Catalog.List()
	out := modelList{Object: "list", Data: make([]modelView, 0, len(models))}
	for _, m := range models {
		out.Data = append(out.Data, modelView{
			ID:          m.ID,
			Provider:    m.Provider,
			DisplayName: m.DisplayName,
			Thinking:    m.Thinking != nil && *m.Thinking,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
