package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// HealthHandler returns a handler for the database health check endpoint.
// Ping failures are logged; the response only says the database is unhealthy.
func HealthHandler(pool *pgxpool.Pool, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := pool.Ping(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("database health check failed")
		}
		status, body := healthResponse(err, GetPoolStats(pool))
		return c.JSON(status, body)
	}
}

func healthResponse(pingErr error, stats *PoolStats) (int, map[string]interface{}) {
	if pingErr != nil {
		stats.Healthy = false
		return http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"pool":   stats,
		}
	}
	return http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"pool":   stats,
	}
}
