package main

import (
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/zfile/internal/config"
	"github.com/any-hub/zfile/internal/doi"
	"github.com/any-hub/zfile/internal/metrics"
	"github.com/any-hub/zfile/internal/server"
	"github.com/any-hub/zfile/internal/server/routes"
)

// buildApp 组装 Fiber 应用并挂载 /-/ 诊断路由，与 Listen 分离以便测试。
func buildApp(cfg *config.Config, resolver *doi.Resolver, proxyHandler server.ProxyHandler, m *metrics.Metrics, logger *logrus.Logger) (*fiber.App, error) {
	app, err := server.NewApp(server.AppOptions{
		Logger:       logger,
		Proxy:        proxyHandler,
		StaticDir:    cfg.Global.StaticDir,
		AllowOrigins: cfg.Global.AllowOrigins,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterCacheRoutes(app, resolver, logger)
	routes.RegisterMetricsRoute(app, m)
	return app, nil
}
