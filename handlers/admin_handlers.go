package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"psyeval-server/ingestion"
)

// HealthCheck reports that the process is serving.
// GET /health
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// TriggerImport imports the questionnaire banks found in importPath.
// POST /api/admin/import
func TriggerImport(store ingestion.Importer, importPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if importPath == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Questionnaire import path is not configured"})
			return
		}
		summary, err := ingestion.ImportDir(c.Request.Context(), store, importPath)
		if err != nil {
			zap.L().Error("questionnaire import failed", zap.String("path", importPath), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to import questionnaires"})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
