package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/adobe/aio-tvm/internal/api/presenter"
	"github.com/adobe/aio-tvm/internal/core"
)

const maxBodyBytes = 1 << 20

// handleCredentials turns the HTTP request into a pipeline request. Params
// come from the query string and, for POST, an optional JSON object body
// whose values win.
func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	name := r.PathValue("provider")

	pipeline, ok := s.pipelines[name]
	if !ok {
		logger.Warn().Str("provider", name).Msg("unknown provider requested")
		presenter.Error(w, r, "unknown provider '"+name+"'", http.StatusNotFound)
		return
	}

	params := make(map[string]any)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	if r.Method == http.MethodPost {
		body, err := decodeBody(r)
		if err != nil {
			logger.Warn().Err(err).Msg("invalid request body")
			presenter.Error(w, r, "request body must be a JSON object", http.StatusBadRequest)
			return
		}
		for k, v := range body {
			params[k] = v
		}
	}

	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}

	resp := pipeline.ProcessRequest(r.Context(), core.Request{
		Provider: name,
		Params:   params,
		Headers:  headers,
	})
	presenter.Pipeline(w, r, resp)
}

func decodeBody(r *http.Request) (map[string]any, error) {
	body := make(map[string]any)
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return body, nil
		}
		return nil, err
	}
	return body, nil
}
