package server

import (
	"net/http"

	"vidtube/internal/api"
)

// writeMiddlewareError normalises middleware error responses to the API JSON shape.
func writeMiddlewareError(w http.ResponseWriter, status int, message string) {
	api.WriteError(w, &api.Error{Status: status, Message: message})
}
