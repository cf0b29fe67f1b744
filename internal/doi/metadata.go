package doi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// LinkSet 是 DOI 对应的包元数据。Raw 保留上游原始 JSON，供直接透传。
type LinkSet struct {
	DOI   string          `json:"-"`
	URL   string          `json:"-"`
	Raw   json.RawMessage `json:"-"`
	Files []FileEntry     `json:"files"`
	Links SelfLinks       `json:"links"`
}

// FileEntry 是元数据中 files 数组的单条原始记录。
type FileEntry struct {
	ID       flexText  `json:"id"`
	Key      string    `json:"key"`
	Size     flexText  `json:"size"`
	Checksum string    `json:"checksum"`
	Links    SelfLinks `json:"links"`
}

// SelfLinks 对应 {"links": {"self": "..."}}。
type SelfLinks struct {
	Self string `json:"self"`
}

// flexText 接受 JSON 字符串或数字，统一保存为文本；size/id 在不同版本的接口中两种写法都出现过。
type flexText string

func (f *flexText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexText(n.String())
	return nil
}

// String 返回文本形式。
func (f flexText) String() string {
	return string(f)
}

// Int64 将文本解析为十进制整数。
func (f flexText) Int64() (int64, error) {
	return strconv.ParseInt(string(f), 10, 64)
}

// FetchMetadata 解析 DOI 的 linkset 关系并获取包元数据。缺少 linkset 关系时返回
// ErrResolution；请求失败、非 2xx、JSON 非法或文件条目字段非法时返回 ErrMetadata。
// 结果按 DOI 缓存，与 Link 头缓存相互独立。
func (r *Resolver) FetchMetadata(ctx context.Context, doi string) (*LinkSet, error) {
	ls, _, err := r.fetchMetadata(ctx, doi)
	return ls, err
}

func (r *Resolver) fetchMetadata(ctx context.Context, doi string) (*LinkSet, bool, error) {
	ls, outcome, err := r.metadata.Get(ctx, doi, func(loadCtx context.Context) (*LinkSet, error) {
		links, err := r.ResolveLinks(loadCtx, doi)
		if err != nil {
			return nil, err
		}
		linkset, ok := links.Get(relLinkset)
		if !ok || linkset.URL == "" {
			return nil, resolutionError(doi, "no links found", nil)
		}

		resp, err := r.fetch(loadCtx, stageMetadata, linkset.URL, acceptMetadata, true)
		if err != nil {
			return nil, metadataError(doi, "metadata request failed", err)
		}
		if !resp.ok() {
			return nil, metadataError(doi, "metadata endpoint returned "+resp.statusText(), nil)
		}
		return decodeLinkSet(doi, linkset.URL, resp.body)
	})
	if err != nil {
		return nil, false, err
	}
	return ls, outcome.Hit(), nil
}

// decodeLinkSet 将元数据文档解码为 LinkSet，并校验每个文件条目。
func decodeLinkSet(doi, sourceURL string, body []byte) (*LinkSet, error) {
	var wire struct {
		Files *[]FileEntry `json:"files"`
		Links SelfLinks    `json:"links"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, metadataError(doi, "invalid metadata document", err)
	}
	if wire.Files == nil {
		return nil, metadataError(doi, "metadata document has no files array", nil)
	}
	ls := &LinkSet{
		DOI:   doi,
		URL:   sourceURL,
		Raw:   json.RawMessage(append([]byte(nil), body...)),
		Files: *wire.Files,
		Links: wire.Links,
	}
	if _, err := ListFiles(ls); err != nil {
		return nil, err
	}
	return ls, nil
}
