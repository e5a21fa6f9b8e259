package status

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pevans/waybackfed/config"
	"github.com/pevans/waybackfed/ledger"
)

// DefaultRunLimit bounds GET /api/v1/runs when no limit is given.
const DefaultRunLimit = 50

// RunLister is the part of the run ledger the API reads.
type RunLister interface {
	ListRuns(filter ledger.RunFilter) ([]ledger.Run, error)
}

// APIServer represents the read-only HTTP API over pipeline progress.
type APIServer struct {
	cfg  *config.FileConfig
	runs RunLister
}

// NewAPIServer creates a new status API server. runs may be nil, in which
// case the runs endpoint is unavailable.
func NewAPIServer(cfg *config.FileConfig, runs RunLister) *APIServer {
	return &APIServer{
		cfg:  cfg,
		runs: runs,
	}
}

// SetupRouter configures the Gin router with the status API routes.
func (s *APIServer) SetupRouter() *gin.Engine {
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	api := router.Group("/api/v1")
	api.GET("/sites", s.HandleListSites)
	api.GET("/sites/:site/status", s.HandleGetStatus)
	api.GET("/runs", s.HandleListRuns)

	return router
}

// SiteSummary is one entry of GET /api/v1/sites.
type SiteSummary struct {
	Site    string `json:"site"`
	BaseURL string `json:"base_url"`
	Seeds   int    `json:"seeds"`
}

// ListSitesResponse represents the response for GET /api/v1/sites.
type ListSitesResponse struct {
	Sites []SiteSummary `json:"sites"`
	Total int           `json:"total"`
}

// ListRunsResponse represents the response for GET /api/v1/runs.
type ListRunsResponse struct {
	Runs  []ledger.Run `json:"runs"`
	Total int          `json:"total"`
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// HandleListSites handles GET /api/v1/sites.
func (s *APIServer) HandleListSites(c *gin.Context) {
	sites := make([]SiteSummary, 0, len(s.cfg.Targets))
	for _, name := range s.cfg.Targets {
		site, err := s.cfg.Site(name)
		if err != nil {
			continue
		}
		sites = append(sites, SiteSummary{Site: name, BaseURL: site.BaseURL, Seeds: len(site.Seeds)})
	}

	c.JSON(http.StatusOK, ListSitesResponse{Sites: sites, Total: len(sites)})
}

// HandleGetStatus handles GET /api/v1/sites/{site}/status.
func (s *APIServer) HandleGetStatus(c *gin.Context) {
	st, err := Collect(s.cfg, c.Param("site"))
	if errors.Is(err, config.ErrUnknownSite) {
		c.JSON(http.StatusNotFound, errorResponse("not_found", "Site not found"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to read site status"))
		return
	}

	c.JSON(http.StatusOK, st)
}

// HandleListRuns handles GET /api/v1/runs.
func (s *APIServer) HandleListRuns(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse("unavailable", "Run ledger is not configured"))
		return
	}

	filter := ledger.RunFilter{
		Site:  c.Query("site"),
		Stage: c.Query("stage"),
		Limit: DefaultRunLimit,
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, errorResponse("validation_error", "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	runs, err := s.runs.ListRuns(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to list runs"))
		return
	}
	if runs == nil {
		runs = []ledger.Run{}
	}

	c.JSON(http.StatusOK, ListRunsResponse{Runs: runs, Total: len(runs)})
}
