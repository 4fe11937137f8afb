package httpapi

import (
	"errors"
	"net/http"

	"github.com/moving-hub/moving-hub/internal/apperror"
	appAuth "github.com/moving-hub/moving-hub/internal/application/auth"
)

const (
	codeUnauthorized = "UNAUTHORIZED"
	codeForbidden    = "FORBIDDEN"
)

type errorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// respondAppError maps the application error taxonomy onto HTTP. Internal
// errors are logged and reported without detail.
func (s *Server) respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, appAuth.ErrInvalidCredentials) || errors.Is(err, appAuth.ErrUnauthenticated) || errors.Is(err, appAuth.ErrUserDisabled) {
		respondError(w, http.StatusUnauthorized, codeUnauthorized, err.Error())
		return
	}

	code := apperror.Code(err)
	resp := errorResponse{Error: code, Message: err.Error()}
	status := http.StatusInternalServerError
	switch code {
	case apperror.CodeValidation:
		status = http.StatusBadRequest
	case apperror.CodeNotFound:
		status = http.StatusNotFound
	case apperror.CodeConflict:
		status = http.StatusConflict
		var ce *apperror.ConflictError
		if errors.As(err, &ce) {
			resp.Expected = ce.Expected
			resp.Actual = ce.Actual
		}
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Str("request_id", requestID(r)).Msg("request failed")
		resp.Error = apperror.CodeInternal
		resp.Message = "internal error"
	}
	respondJSON(w, status, resp)
}

func respondInvalid(w http.ResponseWriter, message string) {
	respondError(w, http.StatusBadRequest, apperror.CodeValidation, message)
}
