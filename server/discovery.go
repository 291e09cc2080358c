package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	sponsorgate "github.com/x402-foundation/sponsorgate"
)

func (s *Server) handleListPlugins(c *gin.Context) {
	plugins := s.cfg.Plugins.List()
	out := make([]gin.H, 0, len(plugins))
	for _, p := range plugins {
		desc := p.Describe(sponsorgate.PluginConfig{})
		out = append(out, gin.H{
			"id":           p.ID(),
			"name":         p.Name(),
			"instructions": desc.HumanInstructions,
		})
	}
	c.JSON(http.StatusOK, gin.H{"plugins": out})
}

func (s *Server) handleListResources(c *gin.Context) {
	if query := c.Query("q"); query != "" {
		c.JSON(http.StatusOK, gin.H{"resources": s.cfg.Resources.Search(query)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resources": s.cfg.Resources.List()})
}

func (s *Server) handleGetResource(c *gin.Context) {
	resource, ok := s.cfg.Resources.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown resource"})
		return
	}
	c.JSON(http.StatusOK, resource)
}
