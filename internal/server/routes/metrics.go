package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/any-hub/zfile/internal/metrics"
)

// RegisterMetricsRoute 在 /-/metrics 暴露 Prometheus 文本格式指标；m 为 nil 时不注册。
func RegisterMetricsRoute(app *fiber.App, m *metrics.Metrics) {
	if app == nil || m == nil {
		return
	}
	app.Get("/-/metrics", adaptor.HTTPHandler(m.Handler()))
}
