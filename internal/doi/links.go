package doi

import (
	"context"
	"mime"
	"net/url"
	"strings"
)

const (
	// acceptResolution 优先请求 JSON 形式的 linkset，同时接受任意类型。
	acceptResolution = "application/json, */*;q=0.1"
	acceptMetadata   = "application/json"

	relLinkset = "linkset"
)

// Link 是一条解析后的 RFC 8288 Link 头。
type Link struct {
	URL    string            `json:"url"`
	Rel    string            `json:"rel"`
	Type   string            `json:"type,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// LinkHeaders 按 relation 索引 Link 头。
type LinkHeaders map[string]Link

// Get 返回 rel 对应的链接。
func (h LinkHeaders) Get(rel string) (Link, bool) {
	link, ok := h[strings.ToLower(rel)]
	return link, ok
}

// ResolveLinks 对 ResolverURL+doi 做内容协商，返回最终响应上的 Link 头。
// 请求失败、超时或响应不含 Link 头都视为 ErrResolution。结果按解析 URL 缓存。
func (r *Resolver) ResolveLinks(ctx context.Context, doi string) (LinkHeaders, error) {
	target := r.base + doi
	links, _, err := r.links.Get(ctx, target, func(loadCtx context.Context) (LinkHeaders, error) {
		resp, err := r.fetch(loadCtx, stageLinks, target, acceptResolution, false)
		if err != nil {
			return nil, resolutionError(doi, "resolver request failed", err)
		}
		links := buildLinkHeaders(resp.url, resp.header.Values("Link"))
		if len(links) == 0 {
			return nil, resolutionError(doi, "no link headers returned (status "+resp.statusText()+")", nil)
		}
		return links, nil
	})
	return links, err
}

// buildLinkHeaders 合并多个 Link 头值。同一 rel 出现多次时保留第一条，
// 除非后出现的是 JSON 类型而已有的不是。相对 URL 以 base 解析。
func buildLinkHeaders(base *url.URL, values []string) LinkHeaders {
	out := make(LinkHeaders)
	for _, value := range values {
		for _, link := range parseLinkHeader(value) {
			if base != nil {
				if ref, err := url.Parse(link.URL); err == nil {
					link.URL = base.ResolveReference(ref).String()
				}
			}
			for _, rel := range strings.Fields(link.Rel) {
				rel = strings.ToLower(rel)
				entry := link
				entry.Rel = rel
				if existing, ok := out[rel]; ok {
					if isJSONType(existing.Type) || !isJSONType(entry.Type) {
						continue
					}
				}
				out[rel] = entry
			}
		}
	}
	return out
}

// parseLinkHeader 解析单个 Link 头值：`<url>; rel="a b"; type="..."`，多条以逗号分隔。
// 逗号可能出现在 URL 或引号内，因此逐字符扫描而不是直接 Split。
func parseLinkHeader(header string) []Link {
	var links []Link
	for _, part := range splitOutside(header, ',') {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "<") {
			continue
		}
		end := strings.Index(part, ">")
		if end < 0 {
			continue
		}
		link := Link{
			URL:    strings.TrimSpace(part[1:end]),
			Params: map[string]string{},
		}
		for _, param := range splitOutside(part[end+1:], ';') {
			param = strings.TrimSpace(param)
			if param == "" {
				continue
			}
			key, value, _ := strings.Cut(param, "=")
			key = strings.ToLower(strings.TrimSpace(key))
			value = strings.Trim(strings.TrimSpace(value), `"`)
			switch key {
			case "rel":
				if link.Rel == "" {
					link.Rel = value
				}
			case "type":
				link.Type = value
			default:
				link.Params[key] = value
			}
		}
		if link.Rel == "" {
			continue
		}
		links = append(links, link)
	}
	return links
}

// splitOutside 按 sep 切分，忽略尖括号与双引号内部的分隔符。
func splitOutside(s string, sep byte) []string {
	var (
		parts   []string
		start   int
		inQuote bool
		inURL   bool
	)
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case ch == '"' && !inURL:
			inQuote = !inQuote
		case ch == '<' && !inQuote:
			inURL = true
		case ch == '>' && !inQuote:
			inURL = false
		case ch == sep && !inQuote && !inURL:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func isJSONType(mediaType string) bool {
	if mediaType == "" {
		return false
	}
	base, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(mediaType))
	}
	return base == "application/json" || strings.HasSuffix(base, "+json")
}
