package server

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/static"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProxyHandler describes the component responsible for resolving a
// "DOI/filename" target and answering the request. It allows injecting fake
// handlers during tests.
type ProxyHandler interface {
	Handle(c fiber.Ctx, target string) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx, string) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx, target string) error {
	return f(c, target)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger       *logrus.Logger
	Proxy        ProxyHandler
	StaticDir    string
	AllowOrigins []string
}

const contextKeyRequestID = "_zfile_request_id"

// minTargetLength 以下的路径不可能是 "DOI/文件名"，直接返回首页。
const minTargetLength = 7

// NewApp builds a Fiber application with request ID, CORS and static
// middlewares, the home page, and the catch-all resolution route.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}
	if strings.TrimSpace(opts.StaticDir) == "" {
		return nil, errors.New("static dir is required")
	}
	origins := opts.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		UnescapePath:  true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{fiber.MethodGet},
		AllowHeaders: []string{"*"},
	}))
	app.Use("/static", static.New(opts.StaticDir))

	home := homeHandler(opts.StaticDir, opts.Logger)
	app.Get("/", home)
	app.Get("/favicon.ico", notFound)
	app.Get("/favicon.png", notFound)

	app.Get("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		// Params 指向 fasthttp 复用的缓冲区，目标会作为缓存键长期保存，需要复制。
		target := strings.Clone(strings.Trim(c.Params("*"), "/"))
		if len(target) < minTargetLength {
			return home(c)
		}
		return opts.Proxy.Handle(c, target)
	})

	return app, nil
}

// requestIDMiddleware 为每个请求生成请求 ID，写入 Locals 与响应头。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

func homeHandler(staticDir string, logger *logrus.Logger) fiber.Handler {
	index := filepath.Join(staticDir, "index.html")
	return func(c fiber.Ctx) error {
		logger.WithFields(logrus.Fields{
			"action":     "home",
			"path":       string(c.Request().URI().Path()),
			"request_id": RequestID(c),
		}).Debug("serve home page")
		return c.SendFile(index)
	}
}

func notFound(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
