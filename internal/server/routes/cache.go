package routes

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/zfile/internal/doi"
	"github.com/any-hub/zfile/internal/server"
)

// CacheAdmin 是诊断接口需要的缓存操作，由 *doi.Resolver 实现。
type CacheAdmin interface {
	Caches() []doi.CacheReport
	Invalidate(key string) bool
	Purge()
}

// RegisterCacheRoutes 暴露 /-/cache 诊断接口：查看各级缓存、按 DOI 失效与整体清空。
func RegisterCacheRoutes(app *fiber.App, admin CacheAdmin, logger *logrus.Logger) {
	if app == nil || admin == nil {
		return
	}

	app.Get("/-/cache", func(c fiber.Ctx) error {
		return c.JSON(encodeCaches(admin.Caches()))
	})

	app.Delete("/-/cache", func(c fiber.Ctx) error {
		admin.Purge()
		logAdmin(logger, c, "cache_purge", "")
		return c.JSON(fiber.Map{"purged": true})
	})

	app.Delete("/-/cache/*", func(c fiber.Ctx) error {
		target := strings.Trim(c.Params("*"), "/")
		if strings.Count(target, "/") < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "doi_required"})
		}
		if !admin.Invalidate(target) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_cached", "doi": target})
		}
		logAdmin(logger, c, "cache_invalidate", target)
		return c.JSON(fiber.Map{"invalidated": target})
	})
}

type cachesPayload struct {
	Caches []doi.CacheReport `json:"caches"`
}

func encodeCaches(reports []doi.CacheReport) cachesPayload {
	if reports == nil {
		reports = []doi.CacheReport{}
	}
	return cachesPayload{Caches: reports}
}

func logAdmin(logger *logrus.Logger, c fiber.Ctx, action, target string) {
	if logger == nil {
		return
	}
	fields := logrus.Fields{
		"action":     action,
		"request_id": server.RequestID(c),
	}
	if target != "" {
		fields["doi"] = target
	}
	logger.WithFields(fields).Info("cache_admin")
}
