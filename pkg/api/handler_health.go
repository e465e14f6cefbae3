package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/maestro-ai/maestro/pkg/database"
	"github.com/maestro-ai/maestro/pkg/models"
	"github.com/maestro-ai/maestro/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"

	// backendUnconfigured marks an optional backend with no credentials
	// or index. The pipeline downgrades around it, so it only degrades
	// the report.
	backendUnconfigured = "needs_configuration"
)

// healthHandler handles GET /health. The store is the only hard
// dependency: without it nothing works and the report is unhealthy.
// Unconfigured tool backends degrade the report but keep it serving.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	backends := make(map[string]BackendHealth)
	status := healthStatusHealthy

	if store, err := database.CheckStore(reqCtx, s.deps.DB); err != nil {
		status = healthStatusUnhealthy
		backends["store"] = BackendHealth{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		backends["store"] = BackendHealth{Status: healthStatusHealthy, Message: store.Summary()}
	}

	if s.deps.Broker != nil {
		backends["broker"] = BackendHealth{Status: healthStatusHealthy}
	} else {
		backends["broker"] = BackendHealth{Status: backendUnconfigured, Message: "no event broker"}
		if status == healthStatusHealthy {
			status = healthStatusDegraded
		}
	}

	if s.deps.LLM != nil {
		backends["llm"] = BackendHealth{Status: healthStatusHealthy, Message: s.deps.LLM.Model()}
	} else {
		backends["llm"] = BackendHealth{Status: backendUnconfigured}
		if status == healthStatusHealthy {
			status = healthStatusDegraded
		}
	}

	for name, tool := range map[string]models.Tool{
		"search":    models.ToolWebSearch,
		"retrieval": models.ToolInternalRetrieval,
	} {
		if s.deps.Tools != nil && s.deps.Tools.Configured(tool) {
			backends[name] = BackendHealth{Status: healthStatusHealthy}
		} else {
			backends[name] = BackendHealth{Status: backendUnconfigured}
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, &HealthResponse{
		Status:   status,
		Version:  version.GitCommit,
		Backends: backends,
	})
}
