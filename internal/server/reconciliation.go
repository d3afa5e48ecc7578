package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	connectordomain "github.com/ledgerforgelabs/ledgerforge/internal/connector/domain"
	recondomain "github.com/ledgerforgelabs/ledgerforge/internal/reconciliation/domain"
)

type confirmMatchRequest struct {
	PaymentID   string `json:"payment_id"`
	ConfirmedBy string `json:"confirmed_by"`
}

func (s *Server) ListPendingTransactions(c *gin.Context) {
	orgID, ok := orgFromQuery(c)
	if !ok {
		return
	}
	rows, err := s.recon.ListPending(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, rows)
}

func (s *Server) ListMatchCandidates(c *gin.Context) {
	orgID, ok := orgFromQuery(c)
	if !ok {
		return
	}
	txID, err := snowflake.ParseString(c.Param("transaction_id"))
	if err != nil {
		AbortWithError(c, recondomain.ErrTransactionNotFound)
		return
	}
	candidates, err := s.recon.FindCandidates(c.Request.Context(), orgID, txID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, candidates)
}

func (s *Server) ConfirmMatch(c *gin.Context) {
	orgID, ok := orgFromQuery(c)
	if !ok {
		return
	}
	txID, err := snowflake.ParseString(c.Param("transaction_id"))
	if err != nil {
		AbortWithError(c, recondomain.ErrTransactionNotFound)
		return
	}

	var req confirmMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, connectordomain.ErrInvalidPayload)
		return
	}
	paymentID, err := snowflake.ParseString(strings.TrimSpace(req.PaymentID))
	if err != nil {
		AbortWithError(c, connectordomain.ErrInvalidPayload)
		return
	}
	confirmedBy := strings.TrimSpace(req.ConfirmedBy)
	if confirmedBy == "" {
		confirmedBy = "operator"
	}

	match, err := s.recon.ConfirmMatch(c.Request.Context(), orgID, txID, paymentID, confirmedBy)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, match)
}

func (s *Server) IgnoreTransaction(c *gin.Context) {
	orgID, ok := orgFromQuery(c)
	if !ok {
		return
	}
	txID, err := snowflake.ParseString(c.Param("transaction_id"))
	if err != nil {
		AbortWithError(c, recondomain.ErrTransactionNotFound)
		return
	}
	if err := s.recon.Ignore(c.Request.Context(), orgID, txID); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"ignored": true})
}

func orgFromQuery(c *gin.Context) (snowflake.ID, bool) {
	orgID, err := snowflake.ParseString(strings.TrimSpace(c.Query("org_id")))
	if err != nil {
		AbortWithError(c, connectordomain.ErrInvalidOrganization)
		return 0, false
	}
	return orgID, true
}
