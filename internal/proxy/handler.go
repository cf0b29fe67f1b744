package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/zfile/internal/doi"
	"github.com/any-hub/zfile/internal/logging"
	"github.com/any-hub/zfile/internal/metrics"
	"github.com/any-hub/zfile/internal/server"
	"github.com/any-hub/zfile/internal/version"
)

// 响应方式，同时用作日志 mode 字段与指标标签。
const (
	modeMetadata = "metadata"
	modeRedirect = "redirect"
	modeStream   = "stream"
	modeError    = "error"
)

// Resolver 是 Handler 依赖的解析入口，由 *doi.Resolver 实现。
type Resolver interface {
	Resolve(ctx context.Context, target string) (*doi.Result, error)
}

// Handler 负责 orchestrate “解析 DOI → 定位文件 → 返回元数据/重定向/流式内容” 的流程，
// 对外暴露 Fiber handler，内部复用共享 http.Client。
type Handler struct {
	resolver Resolver
	client   *http.Client
	logger   *logrus.Logger
	metrics  *metrics.Metrics
}

// NewHandler constructs a proxy handler with shared resolver/HTTP client/logger.
func NewHandler(resolver Resolver, client *http.Client, logger *logrus.Logger, m *metrics.Metrics) *Handler {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Handler{
		resolver: resolver,
		client:   client,
		logger:   logger,
		metrics:  m,
	}
}

// outcome 汇总一次请求的结果，供日志与指标使用。
type outcome struct {
	target    string
	result    *doi.Result
	mode      string
	status    int
	upstream  string
	requestID string
	started   time.Time
	err       error
}

// Handle 解析 target 并按结果选择响应方式，任何阶段出错都会输出结构化日志。
func (h *Handler) Handle(c fiber.Ctx, target string) error {
	out := &outcome{
		target:    target,
		requestID: server.RequestID(c),
		started:   time.Now(),
	}
	defer h.logResult(out)

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := h.resolver.Resolve(ctx, target)
	if err != nil {
		return h.writeResolveError(c, out, err)
	}
	out.result = res
	c.Set("X-Zfile-Cache-Hit", strconv.FormatBool(res.CacheHit))

	switch {
	case res.File == nil:
		return h.serveMetadata(c, out)
	case res.MediaType == "":
		return h.redirect(c, out)
	default:
		return h.stream(c, out, ctx)
	}
}

func (h *Handler) serveMetadata(c fiber.Ctx, out *outcome) error {
	ls := out.result.LinkSet
	out.mode = modeMetadata
	out.status = fiber.StatusOK
	out.upstream = ls.URL
	c.Set("X-Zfile-Upstream", ls.URL)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(ls.Raw)
}

func (h *Handler) redirect(c fiber.Ctx, out *outcome) error {
	location := out.result.ContentURL()
	out.mode = modeRedirect
	out.status = fiber.StatusTemporaryRedirect
	out.upstream = location
	c.Set("X-Zfile-Upstream", location)
	setChecksum(c, out.result.File)
	return c.Redirect().Status(fiber.StatusTemporaryRedirect).To(location)
}

// stream 获取文件内容并以分类得到的媒体类型返回；上游失败时返回 502。
// 上游头只在成功取得响应后写入，响应体由 fasthttp 边读边写，写完后关闭。
func (h *Handler) stream(c fiber.Ctx, out *outcome, ctx context.Context) error {
	res := out.result
	upstreamURL := res.ContentURL()
	out.mode = modeStream
	out.upstream = upstreamURL

	started := time.Now()
	resp, err := h.fetchContent(ctx, upstreamURL)
	h.metrics.ObserveUpstream("content", started, err)
	if err != nil {
		out.err = err
		return h.writeError(c, out, fiber.StatusBadGateway, "upstream_failed", "")
	}

	copyResponseHeaders(c, resp.Header)
	c.Set(fiber.HeaderContentType, res.MediaType)
	c.Set("X-Zfile-Upstream", upstreamURL)
	setChecksum(c, res.File)
	out.status = fiber.StatusOK
	return c.Status(fiber.StatusOK).SendStream(resp.Body, int(resp.ContentLength))
}

func (h *Handler) fetchContent(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	return resp, nil
}

// writeResolveError 将解析错误映射为 HTTP 响应：解析失败与文件不存在为 404，
// 元数据问题为 502。
func (h *Handler) writeResolveError(c fiber.Ctx, out *outcome, err error) error {
	out.err = err
	switch {
	case errors.Is(err, doi.ErrResolution), errors.Is(err, doi.ErrNotFound):
		return h.writeError(c, out, fiber.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, doi.ErrMetadata):
		return h.writeError(c, out, fiber.StatusBadGateway, "metadata_failed", err.Error())
	default:
		return h.writeError(c, out, fiber.StatusBadGateway, "upstream_failed", "")
	}
}

func (h *Handler) writeError(c fiber.Ctx, out *outcome, status int, code, detail string) error {
	out.mode = modeError
	out.status = status
	payload := fiber.Map{"error": code}
	if detail != "" {
		payload["detail"] = detail
	}
	return c.Status(status).JSON(payload)
}

func (h *Handler) logResult(out *outcome) {
	h.metrics.Response(out.mode)

	doiName, fileName, _ := doi.SplitTarget(out.target)
	cacheHit := false
	if out.result != nil {
		doiName, fileName, cacheHit = out.result.DOI, out.result.FileName, out.result.CacheHit
	}
	fields := logging.RequestFields(doiName, fileName, cacheHit)
	fields["action"] = "resolve"
	fields["mode"] = out.mode
	fields["status"] = out.status
	fields["elapsed_ms"] = time.Since(out.started).Milliseconds()
	if out.upstream != "" {
		fields["upstream"] = out.upstream
	}
	if out.requestID != "" {
		fields["request_id"] = out.requestID
	}
	if out.err != nil {
		fields["error"] = out.err.Error()
		if out.status >= fiber.StatusInternalServerError {
			h.logger.WithFields(fields).Error("resolve_failed")
			return
		}
		h.logger.WithFields(fields).Warn("resolve_failed")
		return
	}
	h.logger.WithFields(fields).Info("resolve_complete")
}

// skippedHeaders 是流式返回时不透传的上游头：类型由分类器决定，长度由 fasthttp 计算，
// 附件声明会阻止浏览器内联渲染。
var skippedHeaders = map[string]struct{}{
	"Content-Type":        {},
	"Content-Length":      {},
	"Content-Disposition": {},
	"Set-Cookie":          {},
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	forwarded := make(http.Header, len(headers))
	server.CopyHeaders(forwarded, headers)
	for key, values := range forwarded {
		if _, skip := skippedHeaders[key]; skip {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}

// setChecksum 以 "md5=..." 形式输出元数据中的校验和，便于客户端核对下载内容。
func setChecksum(c fiber.Ctx, file *doi.FileRecord) {
	if file == nil {
		return
	}
	algorithm, value := file.Digest()
	if value == "" {
		return
	}
	if algorithm != "" {
		value = algorithm + "=" + value
	}
	c.Set("X-Zfile-Checksum", value)
}
