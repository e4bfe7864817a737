package server

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mohammedemad618/amir-sub000/pkg/errors"
)

const defaultMaxBodyBytes = 1 << 20

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

// writeError renders AppErrors as {"code","error","context"}; anything else
// is logged and reported as a generic 500
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		s.logger.Error("Unhandled error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err))
		appErr = errors.ErrInternal
	}

	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		if ok {
			s.logger.Error("Request failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("code", appErr.Code),
				zap.String("request_id", requestIDFrom(r.Context())),
				zap.Error(appErr))
		}
		// internals stay in the log
		appErr = errors.New(appErr.Code, appErr.Message, status)
	}

	s.writeJSON(w, status, appErr)
}

// decodeJSON reads a size-limited JSON body into dst
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	limit := s.config.Server.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case stderrors.As(err, &tooLarge):
			return errors.New("BODY_TOO_LARGE", "request body is too large", http.StatusRequestEntityTooLarge)
		case stderrors.Is(err, io.EOF):
			return errors.ErrValidation.WithMessage("request body is required")
		}
		return errors.ErrValidation.WithMessage("request body is not valid JSON").WithError(err)
	}
	return nil
}
