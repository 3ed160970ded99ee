package httpx

import (
	"net/http"

	apperrors "github.com/target/intake-pipeline/internal/errors"
)

// StatusForError maps an application error to an HTTP status. Unrecognized
// errors are infrastructure failures.
func StatusForError(err error) int {
	switch codeOf(err) {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errCodeFor is the machine-readable error code of the operator API body.
func errCodeFor(err error, fallback string) string {
	if code := codeOf(err); code != "" && code != apperrors.ErrCodeInternal {
		return string(code)
	}
	return fallback
}

// writeServiceError writes an operator API error. Internal failures are not
// echoed back to the caller.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	status := StatusForError(err)
	msg := err
	if status >= http.StatusInternalServerError {
		msg = errInternal
	}
	WriteError(w, ErrorParams{Code: status, ErrCode: errCodeFor(err, fallback), Err: msg})
}

func codeOf(err error) apperrors.ErrorCode {
	if code := apperrors.GetCode(err); code != "" {
		return code
	}
	return apperrors.GetCode(apperrors.MapDBError(err))
}
