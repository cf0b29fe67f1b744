package server

import (
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

func TestRouterPassesTargetToProxy(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/10.5281/zenodo.11400483/index.html", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 204 status, got %d (body=%s)", resp.StatusCode, string(body))
	}
	if app.recorder.target != "10.5281/zenodo.11400483/index.html" {
		t.Fatalf("unexpected target %q", app.recorder.target)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" || reqID != app.recorder.requestID {
		t.Fatalf("expected X-Request-ID header to match locals, got %q vs %q", reqID, app.recorder.requestID)
	}
}

func TestRouterUnescapesAndTrimsTarget(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/10.5281/zenodo.1/my%20style.css/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204 status, got %d", resp.StatusCode)
	}
	if app.recorder.target != "10.5281/zenodo.1/my style.css" {
		t.Fatalf("unexpected target %q", app.recorder.target)
	}
}

func TestRouterTargetOutlivesRequest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "index.html"), "home")
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	var targets []string
	record := ProxyHandlerFunc(func(c fiber.Ctx, target string) error {
		targets = append(targets, target)
		return c.SendStatus(fiber.StatusNoContent)
	})
	app, err := NewApp(AppOptions{
		Logger:    logger,
		Proxy:     record,
		StaticDir: dir,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	for _, path := range []string{"/10.5281/zenodo.11400483", "/10.5281/zenodo.99999999"} {
		if _, err := app.Test(httptest.NewRequest("GET", path, nil)); err != nil {
			t.Fatalf("app.Test %s failed: %v", path, err)
		}
	}
	if len(targets) != 2 || targets[0] != "10.5281/zenodo.11400483" {
		t.Fatalf("first target was overwritten by a later request: %q", targets)
	}
}

func TestRouterServesHomeForShortTargets(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/", "/abc", "/10.1/"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		if err != nil {
			t.Fatalf("app.Test %s failed: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), "zfile home") {
			t.Fatalf("%s: expected home page, got %d %s", path, resp.StatusCode, string(body))
		}
	}
	if app.recorder.calls != 0 {
		t.Fatalf("proxy should not be called for short targets")
	}
}

func TestRouterFaviconNotFound(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/favicon.ico", "/favicon.png"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		if err != nil {
			t.Fatalf("app.Test failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestRouterServesStatic(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/static/app.css", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || string(body) != "body{}" {
		t.Fatalf("expected static css, got %d %q", resp.StatusCode, string(body))
	}
}

func TestRouterSetsCORSHeaders(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest("GET", "/10.5281/zenodo.1/a.txt", nil)
	req.Header.Set("Origin", "https://example.org")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard CORS origin, got %q", got)
	}
}

func TestRouterLeavesDiagnosticsToLaterRoutes(t *testing.T) {
	app := newTestApp(t)
	app.Get("/-/ping", func(c fiber.Ctx) error {
		return c.SendString("pong")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/-/ping", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "pong" {
		t.Fatalf("expected diagnostics route, got %q", string(body))
	}
	if app.recorder.calls != 0 {
		t.Fatalf("proxy should not see diagnostics paths")
	}
}

func TestNewAppRequiresDependencies(t *testing.T) {
	if _, err := NewApp(AppOptions{}); err == nil {
		t.Fatalf("expected error without logger")
	}
	if _, err := NewApp(AppOptions{Logger: logrus.New(), StaticDir: "."}); err == nil {
		t.Fatalf("expected error without proxy")
	}
}

type testApp struct {
	*fiber.App
	recorder *proxyRecorder
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "index.html"), "<html><title>zfile home</title></html>")
	writeFile(t, filepath.Join(dir, "app.css"), "body{}")

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	recorder := &proxyRecorder{}
	app, err := NewApp(AppOptions{
		Logger:       logger,
		Proxy:        recorder,
		StaticDir:    dir,
		AllowOrigins: []string{"*"},
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	return &testApp{App: app, recorder: recorder}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

type proxyRecorder struct {
	target    string
	requestID string
	calls     int
}

func (p *proxyRecorder) Handle(c fiber.Ctx, target string) error {
	p.calls++
	p.target = target
	p.requestID = RequestID(c)
	return c.SendStatus(fiber.StatusNoContent)
}
