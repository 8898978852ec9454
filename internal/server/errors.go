package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	usecase "github.com/practice-sem-2/messaging-service/internal/usecases"
)

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// Order matters: ErrAuthenticationRequired is a kind of ErrPermissionDenied.
var errorMapper = []struct {
	from   error
	status int
	code   string
}{
	{usecase.ErrAuthenticationRequired, http.StatusUnauthorized, "unauthenticated"},
	{usecase.ErrPermissionDenied, http.StatusForbidden, "not_authorized"},
	{usecase.ErrNotFound, http.StatusNotFound, "not_found"},
	{usecase.ErrAlreadyExists, http.StatusConflict, "already_exists"},
	{usecase.ErrAlreadyPending, http.StatusConflict, "already_pending"},
	{usecase.ErrAlreadyResponded, http.StatusConflict, "already_responded"},
	{usecase.ErrBusinessLogicViolation, http.StatusBadRequest, "invalid_input"},
}

func wrapError(err error) (int, apiError) {
	for _, mapping := range errorMapper {
		if errors.Is(err, mapping.from) {
			return mapping.status, apiError{Message: err.Error(), Code: mapping.code}
		}
	}
	return http.StatusInternalServerError, apiError{Message: "internal error", Code: "internal"}
}

func respondError(c *gin.Context, err error) {
	status, body := wrapError(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, errorEnvelope{Error: body})
}
