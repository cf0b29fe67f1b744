// Package doitest 提供模拟 DOI 解析服务与 Zenodo 接口的 httptest 服务器，
// 记录各阶段调用次数，供 doi/proxy/main 的测试共用。
package doitest

import (
	_ "embed"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// KnownDOI 是内置夹具对应的 DOI，包内共 3 个文件。
const KnownDOI = "10.5281/zenodo.11400483"

// KnownFiles 按元数据顺序列出夹具中的文件名。
var KnownFiles = []string{"index.html", "my style.css", "data.zip"}

//go:embed testdata/zenodo_11400483.json
var knownRecord string

const basePlaceholder = "{{BASE}}"

// Upstream 同时扮演 doi.org（/doi/）、落地页（/records/）、元数据接口（/api/<doi>）
// 与文件下载（/api/records/.../content）。
type Upstream struct {
	Server *httptest.Server

	mu          sync.Mutex
	records     map[string]string
	linkHeaders map[string]string
	gate        chan struct{}
	lastContent string
	accept      map[string]string
	failContent int

	resolveCalls  atomic.Int64
	metadataCalls atomic.Int64
	contentCalls  atomic.Int64
}

// NewUpstream 启动服务器并注册 KnownDOI 夹具，测试结束时自动关闭。
func NewUpstream(t testing.TB) *Upstream {
	t.Helper()
	u := &Upstream{
		records:     make(map[string]string),
		linkHeaders: make(map[string]string),
		accept:      make(map[string]string),
	}
	u.Server = httptest.NewServer(http.HandlerFunc(u.serve))
	t.Cleanup(u.Server.Close)
	u.AddRecord(KnownDOI, knownRecord)
	return u
}

// ResolverURL 返回应配置给 Resolver 的解析前缀。
func (u *Upstream) ResolverURL() string {
	return u.Server.URL + "/doi/"
}

// AddRecord 注册 doi 的元数据文档，文档中的 {{BASE}} 会替换为服务器地址。
func (u *Upstream) AddRecord(doi, body string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.records[doi] = strings.ReplaceAll(body, basePlaceholder, u.Server.URL)
}

// SetLinkHeader 让 doi 的解析请求直接返回给定的 Link 头而不是重定向；空串表示不返回 Link 头。
func (u *Upstream) SetLinkHeader(doi, header string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.linkHeaders[doi] = strings.ReplaceAll(header, basePlaceholder, u.Server.URL)
}

// Hold 阻塞后续元数据请求，直到调用返回的 release。
func (u *Upstream) Hold() (release func()) {
	gate := make(chan struct{})
	u.mu.Lock()
	u.gate = gate
	u.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			u.mu.Lock()
			u.gate = nil
			u.mu.Unlock()
			close(gate)
		})
	}
}

// ResolveCalls 返回解析请求次数。
func (u *Upstream) ResolveCalls() int { return int(u.resolveCalls.Load()) }

// MetadataCalls 返回元数据请求次数。
func (u *Upstream) MetadataCalls() int { return int(u.metadataCalls.Load()) }

// ContentCalls 返回文件下载请求次数。
func (u *Upstream) ContentCalls() int { return int(u.contentCalls.Load()) }

// LastContentPath 返回最近一次下载请求的转义路径。
func (u *Upstream) LastContentPath() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastContent
}

// ResolveAccept 返回最近一次解析请求携带的 Accept 头。
func (u *Upstream) ResolveAccept() string { return u.lastAccept("resolve") }

// MetadataAccept 返回最近一次元数据请求携带的 Accept 头。
func (u *Upstream) MetadataAccept() string { return u.lastAccept("metadata") }

// FailContent 让后续下载请求返回 status（仍带 ETag），0 表示恢复正常。
func (u *Upstream) FailContent(status int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failContent = status
}

func (u *Upstream) lastAccept(stage string) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.accept[stage]
}

func (u *Upstream) recordAccept(stage string, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.accept[stage] = r.Header.Get("Accept")
}

func (u *Upstream) serve(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/doi/"):
		u.serveResolve(w, r, strings.TrimPrefix(path, "/doi/"))
	case strings.HasPrefix(path, "/records/"):
		doi := strings.TrimPrefix(path, "/records/")
		w.Header().Add("Link", `<`+u.Server.URL+`/api/`+doi+`> ; rel="linkset" ; type="application/linkset+json"`)
		w.Header().Add("Link", `<https://doi.org/`+doi+`> ; rel="cite-as"`)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	case strings.HasPrefix(path, "/api/records/") && strings.HasSuffix(path, "/content"):
		u.contentCalls.Add(1)
		u.mu.Lock()
		u.lastContent = r.URL.EscapedPath()
		fail := u.failContent
		u.mu.Unlock()
		w.Header().Set("ETag", `"fixture"`)
		if fail != 0 {
			w.WriteHeader(fail)
			return
		}
		parts := strings.Split(strings.TrimSuffix(path, "/content"), "/")
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("content of " + parts[len(parts)-1]))
	case strings.HasPrefix(path, "/api/"):
		u.serveMetadata(w, r, strings.TrimPrefix(path, "/api/"))
	default:
		http.NotFound(w, r)
	}
}

func (u *Upstream) serveResolve(w http.ResponseWriter, r *http.Request, doi string) {
	u.resolveCalls.Add(1)
	u.recordAccept("resolve", r)
	u.mu.Lock()
	header, override := u.linkHeaders[doi]
	_, known := u.records[doi]
	u.mu.Unlock()

	if override {
		if header != "" {
			w.Header().Add("Link", header)
		}
		w.WriteHeader(http.StatusOK)
		return
	}
	if !known {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/records/"+(&url.URL{Path: doi}).EscapedPath(), http.StatusFound)
}

func (u *Upstream) serveMetadata(w http.ResponseWriter, r *http.Request, doi string) {
	u.metadataCalls.Add(1)
	u.recordAccept("metadata", r)
	u.mu.Lock()
	gate := u.gate
	body, ok := u.records[doi]
	u.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}
