package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/orderhistory/internal/database/sqltx"
	"github.com/keyxmakerx/orderhistory/internal/locks"
	"github.com/keyxmakerx/orderhistory/internal/plugins/orderlog"
	"github.com/keyxmakerx/orderhistory/internal/plugins/orders"
	"github.com/keyxmakerx/orderhistory/internal/plugins/smtp"
)

// RegisterRoutes builds the plugins and registers their routes. This is the
// single place where the object graph is assembled.
func (a *App) RegisterRoutes() {
	e := a.Echo

	e.GET("/healthz", a.healthz)

	mailer := smtp.NewMailService(a.Config.SMTP)
	if !mailer.IsConfigured() {
		slog.Warn("SMTP is not configured; notification emails will fail until SMTP_HOST is set")
	}

	logCfg := a.Config.OrderLog()
	locker := locks.NewOrderLock(a.Redis, a.Config.Redis.LockTTL,
		locks.WithWait(a.Config.Redis.LockWait),
		locks.WithPrefix(a.Config.Redis.LockPrefix),
	)

	// --- Order log plugin ---
	logRepo := orderlog.NewLogRepository(a.DB)
	logService := orderlog.NewLogService(logRepo, mailer, logCfg)
	observer := orderlog.NewObserver(logService, logCfg)

	// --- Orders plugin ---
	orderRepo := orders.NewOrderRepository(a.DB)
	orderService := orders.NewOrderService(orderRepo, observer, sqltx.NewRunner(a.DB))

	orderlog.RegisterRoutes(e, orderlog.NewHandler(logService, observer, orderService, locker))
	orders.RegisterRoutes(e, orders.NewHandler(orderService, locker))
}

// healthz reports whether MariaDB and Redis answer.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok", "redis": "ok"}
	healthy := true

	if err := a.DB.PingContext(ctx); err != nil {
		checks["database"] = "unavailable"
		healthy = false
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = "unavailable"
		healthy = false
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]any{"healthy": healthy, "checks": checks})
}
