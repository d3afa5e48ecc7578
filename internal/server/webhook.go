package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandleWebhook is the single inbound door for every provider. The raw body
// is read before anything else so the verifiers see exactly the bytes the
// provider signed.
func (s *Server) HandleWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	provider := c.Param("provider")
	org := c.Param("org")

	err = s.ingest.IngestWebhook(c.Request.Context(), provider, org, body, c.Request.Header, c.Request.URL.Query())
	if err != nil {
		s.log.Warn("webhook not accepted",
			zap.String("provider", provider),
			zap.Error(err))
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"received": true})
}
