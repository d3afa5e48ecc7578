package server

import (
	"github.com/gin-gonic/gin"
)

// ListConnectors exposes the descriptor catalog, including the credential
// fields the onboarding UI renders per provider.
func (s *Server) ListConnectors(c *gin.Context) {
	respondData(c, s.registry.Descriptors())
}
