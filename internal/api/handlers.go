package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/forest-guardian/copernicus-stats/internal/store"
	"github.com/gin-gonic/gin"
)

// GET /v1/runs
func (s *Server) handleListRuns(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	runs, err := s.reader.Runs(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": runs,
		"meta": gin.H{"count": len(runs)},
	})
}

// GET /v1/runs/:run/units
func (s *Server) handleListUnits(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	units, err := s.reader.Units(ctx, c.Param("run"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": units,
		"meta": gin.H{"count": len(units)},
	})
}

// GET /v1/runs/:run/statistics
func (s *Server) handleListStatistics(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	statistics, err := s.reader.Statistics(ctx, c.Param("run"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": statistics,
		"meta": gin.H{"count": len(statistics)},
	})
}

// GET /v1/runs/:run/series?unit=&statistic=
func (s *Server) handleSeries(c *gin.Context) {
	unit, statistic := c.Query("unit"), c.Query("statistic")
	if unit == "" || statistic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unit and statistic are required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	points, err := s.reader.Series(ctx, c.Param("run"), unit, statistic)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": points,
		"meta": gin.H{
			"count":     len(points),
			"unit":      unit,
			"statistic": statistic,
		},
	})
}

// GET /v1/runs/:run/table.csv
func (s *Server) handleTableCSV(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	table, err := s.reader.LoadTable(ctx, c.Param("run"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Type", "text/csv")
	c.Status(http.StatusOK)
	if err := table.WriteCSV(c.Writer); err != nil {
		c.Error(err)
	}
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
