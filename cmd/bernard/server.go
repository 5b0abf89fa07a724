package main

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"

	"github.com/leviroth/bernard/store"
)

// Server is the debug surface: prometheus metrics, a health check, and a
// JSON listing of recent audit rows.
type Server struct {
	store  *store.Store
	logger *slog.Logger
}

type GenericStatus struct {
	Daemon string `json:"daemon"`
	Status string `json:"status"`
}

func (s *Server) RunAPI(listen string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(s.logger.With("system", "debugserver")))

	e.GET("/_health", s.handleHealthCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/actions/recent", s.handleRecentActions)

	s.logger.Info("starting debug server", "bind", listen)
	return e.Start(listen)
}

func (s *Server) handleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Daemon: "bernard", Status: "ok"})
}

func (s *Server) handleRecentActions(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 500")
		}
		limit = parsed
	}
	actions, err := s.store.RecentActions(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list actions")
	}
	return c.JSON(http.StatusOK, actions)
}
