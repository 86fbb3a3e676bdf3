package handlers

import (
	"net/http"

	"github.com/go-chi/render"
)

// errorResponse представляет структуру ответа с ошибкой
type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// response представляет структуру успешного ответа
type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

func renderError(w http.ResponseWriter, r *http.Request, status int, kind, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{
		Error:   kind,
		Code:    status,
		Message: message,
	})
}

func renderOK(w http.ResponseWriter, r *http.Request, data, meta interface{}) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}
