package presenter

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/adobe/aio-tvm/internal/core"
	"github.com/adobe/aio-tvm/internal/service"
)

type ErrorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to write json response")
	}
}

func Error(w http.ResponseWriter, r *http.Request, msg string, status int) {
	JSON(w, r, ErrorResponse{
		Error:         msg,
		CorrelationID: core.CorrelationID(r.Context()),
	}, status)
}

// Pipeline writes a pipeline response. Error bodies get the correlation id.
func Pipeline(w http.ResponseWriter, r *http.Request, resp service.Response) {
	if body, ok := resp.Body.(service.ErrorBody); ok {
		Error(w, r, body.Error, resp.StatusCode)
		return
	}
	JSON(w, r, resp.Body, resp.StatusCode)
}
