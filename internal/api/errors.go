package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pharmaguard-server/internal/domain"
	"github.com/pharmaguard-server/internal/middleware"
	"github.com/pharmaguard-server/internal/service"
)

// respondError aborts the request with a PGxError body.
func respondError(c *gin.Context, status int, code, message, details string) {
	pgxErr := domain.NewPGxError(code, message, details, c.GetString(middleware.CorrelationIDKey))
	_ = c.Error(pgxErr)
	c.AbortWithStatusJSON(status, pgxErr)
}

// respondAnalysisError maps pipeline errors onto HTTP statuses.
func respondAnalysisError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError
	switch {
	case errors.Is(err, service.ErrNoDrugs):
		respondError(c, http.StatusBadRequest, domain.ErrNoDrugs, "At least one drug name is required", "")
	case errors.As(err, &validationErr):
		respondError(c, http.StatusBadRequest, domain.ErrValidation, validationErr.Message, validationErr.Field)
	case errors.Is(err, service.ErrUnparseableVCF):
		respondError(c, http.StatusUnprocessableEntity, domain.ErrVCFParse, "VCF content could not be parsed", "no recognisable VCF header or data lines")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(c, http.StatusGatewayTimeout, domain.ErrInternalServer, "Analysis timed out", "")
	default:
		respondError(c, http.StatusInternalServerError, domain.ErrInternalServer, "Analysis failed", err.Error())
	}
}
