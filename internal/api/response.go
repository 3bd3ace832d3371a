package api

import (
	"net/http"

	"github.com/go-chi/render"
)

// envelope is the structured success/failure wrapper every endpoint returns.
type envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

func respondOK(w http.ResponseWriter, r *http.Request, data any) {
	render.JSON(w, r, envelope{Status: "success", Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, code int, err error) {
	render.Status(r, code)
	render.JSON(w, r, envelope{Status: "error", Error: err.Error()})
}
