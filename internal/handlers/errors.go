package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/huangang/projecthub/internal/services"
	"github.com/huangang/projecthub/pkg/logger"
	"github.com/huangang/projecthub/pkg/response"
)

// respondError writes err as an API error. Unclassified errors are logged and
// reported as a bare 500.
func respondError(c *gin.Context, err error) {
	appErr := toAppError(err)
	if appErr == nil {
		log := logger.FromGin(c)
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		response.Error(c, err)
		return
	}
	response.Error(c, appErr)
}

func toAppError(err error) *response.AppError {
	var de *services.DomainError
	msg := err.Error()
	field := ""
	if errors.As(err, &de) {
		msg = de.Message
		field = de.Field
	}

	switch {
	case errors.Is(err, services.ErrValidation):
		return response.NewBadRequest(msg).WithField(field)
	case errors.Is(err, services.ErrNotFound):
		return response.NewNotFound(msg)
	case errors.Is(err, services.ErrAccessDenied):
		return response.NewForbidden(msg)
	case errors.Is(err, services.ErrUnauthenticated):
		return response.NewUnauthorized(msg)
	case errors.Is(err, services.ErrDuplicateRequest),
		errors.Is(err, services.ErrAlreadyMember),
		errors.Is(err, services.ErrConflict):
		return response.NewConflict(msg).WithField(field)
	}
	return nil
}
