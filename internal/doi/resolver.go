package doi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/zfile/internal/cache"
	"github.com/any-hub/zfile/internal/config"
	"github.com/any-hub/zfile/internal/logging"
	"github.com/any-hub/zfile/internal/metrics"
	"github.com/any-hub/zfile/internal/version"
)

const (
	stageLinks    = "links"
	stageMetadata = "metadata"

	// maxMetadataBytes 限制元数据文档大小，防止异常上游耗尽内存。
	maxMetadataBytes = 32 << 20
)

// Options 描述 Resolver 的依赖与参数，零值字段使用默认配置。
type Options struct {
	Client      *http.Client
	ResolverURL string
	Timeout     time.Duration
	CacheSize   int
	Logger      *logrus.Logger
	Metrics     *metrics.Metrics
}

// OptionsFromConfig 根据全局配置构造 Options。
func OptionsFromConfig(cfg *config.Config, client *http.Client, logger *logrus.Logger, m *metrics.Metrics) Options {
	opts := Options{Client: client, Logger: logger, Metrics: m}
	if cfg != nil {
		opts.ResolverURL = cfg.Global.ResolverBase()
		opts.Timeout = cfg.Global.UpstreamTimeout.DurationValue()
		opts.CacheSize = cfg.Global.CacheSize
	}
	return opts
}

// Resolver 串联 DOI 解析、元数据获取与文件索引，三层结果分别缓存。
// 同一进程内应只构造一次并在各请求间共享。
type Resolver struct {
	client  *http.Client
	base    string
	timeout time.Duration
	logger  *logrus.Logger
	metrics *metrics.Metrics

	links    *cache.Memo[LinkHeaders]
	metadata *cache.Memo[*LinkSet]
	files    *cache.Memo[[]FileRecord]
}

// NewResolver 创建 Resolver 及其三层缓存。
func NewResolver(opts Options) (*Resolver, error) {
	base := opts.ResolverURL
	if base == "" {
		base = config.DefaultResolverURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid resolver url %q: %w", base, err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = config.DefaultUpstreamTimeout
	}
	size := opts.CacheSize
	if size == 0 {
		size = config.DefaultCacheSize
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}

	r := &Resolver{
		client:  client,
		base:    base,
		timeout: timeout,
		logger:  logger,
		metrics: opts.Metrics,
	}
	var err error
	if r.links, err = cache.NewMemo[LinkHeaders]("links", size, cache.WithMetrics(opts.Metrics)); err != nil {
		return nil, err
	}
	if r.metadata, err = cache.NewMemo[*LinkSet]("metadata", size, cache.WithMetrics(opts.Metrics)); err != nil {
		return nil, err
	}
	if r.files, err = cache.NewMemo[[]FileRecord]("files", size, cache.WithMetrics(opts.Metrics)); err != nil {
		return nil, err
	}
	return r, nil
}

// Result 是一次目标解析的结果。File 为 nil 表示目标只包含 DOI。
type Result struct {
	DOI       string      `json:"doi"`
	FileName  string      `json:"file,omitempty"`
	LinkSet   *LinkSet    `json:"-"`
	File      *FileRecord `json:"record,omitempty"`
	MediaType string      `json:"media_type,omitempty"`
	CacheHit  bool        `json:"cache_hit"`
}

// ContentURL 返回应当重定向或流式获取的地址；需要内联渲染时文件名部分已做百分号编码。
func (r *Result) ContentURL() string {
	if r == nil || r.File == nil {
		return ""
	}
	if r.MediaType != "" {
		return EscapeContentURL(r.File.Content, r.FileName)
	}
	return r.File.Content
}

// Resolve 是传输层的唯一入口：拆分 "DOI/文件名"，获取元数据，必要时定位文件并判定媒体类型。
// target 应已去除首尾 "/"。
func (r *Resolver) Resolve(ctx context.Context, target string) (*Result, error) {
	doi, fileName, hasFile := SplitTarget(target)
	ls, hit, err := r.fetchMetadata(ctx, doi)
	if err != nil {
		return nil, err
	}
	result := &Result{DOI: doi, LinkSet: ls, CacheHit: hit}
	if !hasFile {
		return result, nil
	}

	files, filesHit, err := r.listFiles(ctx, doi)
	if err != nil {
		return nil, err
	}
	record, err := findFile(doi, files, fileName)
	if err != nil {
		return nil, err
	}
	if record.Content == "" {
		return nil, &Error{Kind: ErrMetadata, DOI: doi, FileName: fileName, Detail: "file has no content link"}
	}
	result.FileName = fileName
	result.File = &record
	result.CacheHit = hit && filesHit
	if mediaType, ok := Classify(fileName); ok {
		result.MediaType = mediaType
	}
	return result, nil
}

// Invalidate 从全部缓存层删除 doi，返回是否有任意一层存在该条目。
func (r *Resolver) Invalidate(doi string) bool {
	removed := r.links.Invalidate(r.base + doi)
	if r.metadata.Invalidate(doi) {
		removed = true
	}
	if r.files.Invalidate(doi) {
		removed = true
	}
	return removed
}

// Purge 清空全部缓存层。
func (r *Resolver) Purge() {
	r.links.Purge()
	r.metadata.Purge()
	r.files.Purge()
}

// CacheReport 是单层缓存的诊断快照。
type CacheReport struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Len      int    `json:"len"`
	InFlight int    `json:"in_flight"`
	cache.Stats
}

// Caches 按 links/metadata/files 顺序返回各层缓存快照。
func (r *Resolver) Caches() []CacheReport {
	return []CacheReport{
		memoReport(r.links),
		memoReport(r.metadata),
		memoReport(r.files),
	}
}

type memoInfo interface {
	Name() string
	Cap() int
	Len() int
	InFlight() int
	Stats() cache.Stats
}

func memoReport(m memoInfo) CacheReport {
	return CacheReport{
		Name:     m.Name(),
		Capacity: m.Cap(),
		Len:      m.Len(),
		InFlight: m.InFlight(),
		Stats:    m.Stats(),
	}
}

type upstreamResponse struct {
	status int
	header http.Header
	url    *url.URL
	body   []byte
}

func (u *upstreamResponse) ok() bool {
	return u.status >= 200 && u.status < 300
}

func (u *upstreamResponse) statusText() string {
	return strconv.Itoa(u.status)
}

// fetch 发起一次带超时的 GET，跟随重定向。readBody 为 false 时丢弃响应体。
func (r *Resolver) fetch(ctx context.Context, stage, target, accept string, readBody bool) (resp *upstreamResponse, err error) {
	started := time.Now()
	defer func() {
		r.metrics.ObserveUpstream(stage, started, err)
		fields := logrus.Fields{
			"action":     "upstream",
			"stage":      stage,
			"upstream":   target,
			"elapsed_ms": time.Since(started).Milliseconds(),
		}
		if err != nil {
			r.logger.WithFields(fields).WithError(err).Warn("upstream_failed")
			return
		}
		fields["upstream_status"] = resp.status
		r.logger.WithFields(fields).Debug("upstream_complete")
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", version.UserAgent())

	res, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out after %s: %w", r.timeout, err)
		}
		return nil, err
	}
	defer res.Body.Close()

	out := &upstreamResponse{
		status: res.StatusCode,
		header: res.Header,
		url:    res.Request.URL,
	}
	if readBody {
		body, err := io.ReadAll(io.LimitReader(res.Body, maxMetadataBytes+1))
		if err != nil {
			return nil, err
		}
		if len(body) > maxMetadataBytes {
			return nil, fmt.Errorf("response exceeds %d bytes", maxMetadataBytes)
		}
		out.body = body
	} else {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
	}
	return out, nil
}
