package proxy

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/any-hub/zfile/internal/doi"
)

const requestIDKey = "_zfile_request_id"

type resolverFunc func(ctx context.Context, target string) (*doi.Result, error)

func (f resolverFunc) Resolve(ctx context.Context, target string) (*doi.Result, error) {
	return f(ctx, target)
}

func TestCopyResponseHeadersSkipsControlledHeaders(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()

	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)

	headers := http.Header{}
	headers.Set("ETag", `"abc"`)
	headers.Set("Last-Modified", "Mon, 01 Jan 2024 00:00:00 GMT")
	headers.Set("Content-Type", "application/octet-stream")
	headers.Set("Content-Disposition", "attachment; filename=a.html")
	headers.Set("Connection", "keep-alive")
	headers.Set("Set-Cookie", "session=1")

	copyResponseHeaders(ctx, headers)

	resp := ctx.Response()
	if got := string(resp.Header.Peek("ETag")); got != `"abc"` {
		t.Fatalf("expected etag to be copied, got %q", got)
	}
	if got := string(resp.Header.Peek("Last-Modified")); got == "" {
		t.Fatalf("expected last-modified to be copied")
	}
	for _, key := range []string{"Content-Disposition", "Connection", "Set-Cookie"} {
		if got := resp.Header.Peek(key); len(got) != 0 {
			t.Fatalf("%s should not be copied, got %q", key, got)
		}
	}
	if ct := string(resp.Header.ContentType()); strings.Contains(ct, "octet-stream") {
		t.Fatalf("content type must come from the classifier, got %s", ct)
	}
}

func TestHandleMapsUnknownErrorsToBadGateway(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()

	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)
	ctx.Locals(requestIDKey, "req-502")

	logBuf := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(logBuf)

	resolver := resolverFunc(func(context.Context, string) (*doi.Result, error) {
		return nil, errors.New("boom")
	})
	handler := NewHandler(resolver, nil, logger, nil)

	if err := handler.Handle(ctx, "10.1234/abc/page.html"); err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	if status := ctx.Response().StatusCode(); status != fiber.StatusBadGateway {
		t.Fatalf("expected 502, got %d", status)
	}
	if body := string(ctx.Response().Body()); !strings.Contains(body, "upstream_failed") || strings.Contains(body, "boom") {
		t.Fatalf("expected opaque upstream_failed body, got %s", body)
	}
	logs := logBuf.String()
	if !strings.Contains(logs, "req-502") || !strings.Contains(logs, `"level":"error"`) {
		t.Fatalf("expected error log with request id, got %s", logs)
	}
	if !strings.Contains(logs, `"file":"page.html"`) {
		t.Fatalf("expected file field from target, got %s", logs)
	}
}

func TestHandleMapsResolutionErrorToNotFound(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()

	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)

	resolver := resolverFunc(func(_ context.Context, target string) (*doi.Result, error) {
		return nil, &doi.Error{Kind: doi.ErrResolution, DOI: target, Detail: "no links found"}
	})
	handler := NewHandler(resolver, nil, nil, nil)

	if err := handler.Handle(ctx, "10.1234/abc"); err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	if status := ctx.Response().StatusCode(); status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if body := string(ctx.Response().Body()); !strings.Contains(body, "no links found") {
		t.Fatalf("expected detail in body, got %s", body)
	}
}
