package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	connectordomain "github.com/ledgerforgelabs/ledgerforge/internal/connector/domain"
	recondomain "github.com/ledgerforgelabs/ledgerforge/internal/reconciliation/domain"
	tenantdomain "github.com/ledgerforgelabs/ledgerforge/internal/tenant/domain"
)

func respondData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func respondError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// AbortWithError maps domain sentinels to HTTP statuses. Anything unmapped is
// a 500, which tells webhook providers to retry the delivery.
func AbortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, connectordomain.ErrInvalidSignature),
		errors.Is(err, connectordomain.ErrMissingSecret):
		respondError(c, http.StatusUnauthorized, err)
	case errors.Is(err, connectordomain.ErrProviderNotFound),
		errors.Is(err, connectordomain.ErrInvalidProvider),
		errors.Is(err, connectordomain.ErrInvalidOrganization),
		errors.Is(err, tenantdomain.ErrConfigNotFound),
		errors.Is(err, recondomain.ErrTransactionNotFound),
		errors.Is(err, recondomain.ErrPaymentNotFound):
		respondError(c, http.StatusNotFound, err)
	case errors.Is(err, connectordomain.ErrInvalidPayload),
		errors.Is(err, connectordomain.ErrInvalidEvent),
		errors.Is(err, connectordomain.ErrMissingAmount):
		respondError(c, http.StatusUnprocessableEntity, err)
	case errors.Is(err, recondomain.ErrPaymentAlreadyMatched),
		errors.Is(err, recondomain.ErrTransactionAlreadyMatched),
		errors.Is(err, recondomain.ErrTransactionNotPending):
		respondError(c, http.StatusConflict, err)
	default:
		respondError(c, http.StatusInternalServerError, err)
	}
}
