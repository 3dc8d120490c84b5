package server

import (
	"encoding/json"
	"net/http"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
)

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error struct {
		Code    fberrors.Code `json:"code"`
		Message string        `json:"message"`
	} `json:"error"`
}

// StatusFor maps an error code to an HTTP status.
func StatusFor(code fberrors.Code) int {
	switch code {
	case fberrors.ErrCodeInvalidInput,
		fberrors.ErrCodeInvalidType,
		fberrors.ErrCodeInvalidHandle,
		fberrors.ErrCodeInvalidFormat,
		fberrors.ErrCodeInvalidName,
		fberrors.ErrCodeMalformedDocument:
		return http.StatusBadRequest
	case fberrors.ErrCodeNotFound:
		return http.StatusNotFound
	case fberrors.ErrCodeUnknownNode:
		return http.StatusUnprocessableEntity
	case fberrors.ErrCodeImportRejected:
		return http.StatusConflict
	case fberrors.ErrCodeUnsupported:
		return http.StatusNotImplemented
	case fberrors.ErrCodeStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", "err", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := fberrors.GetCode(err)
	if code == "" {
		code = fberrors.ErrCodeInternal
	}
	status := StatusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "code", code, "err", err)
	}

	var body errorBody
	body.Error.Code = code
	body.Error.Message = fberrors.UserMessage(err)
	s.respondJSON(w, status, body)
}

func (s *Server) respondBytes(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// decodeBody decodes a JSON request body into v, numbers kept as json.Number.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fberrors.Wrap(fberrors.ErrCodeInvalidInput, err, "invalid request body")
	}
	return nil
}
