package doi

import (
	"net/url"
	"strings"
)

// inlineMediaTypes 列出浏览器可直接渲染、需要代理流式返回的扩展名。
var inlineMediaTypes = map[string]string{
	"html": "text/html",
	"htm":  "text/html",
	"css":  "text/css",
	"js":   "text/javascript",
}

// Classify 根据最后一个 "." 之后的扩展名返回内联媒体类型；未知或无扩展名时 ok 为 false。
func Classify(fileName string) (mediaType string, ok bool) {
	idx := strings.LastIndex(fileName, ".")
	if idx < 0 {
		return "", false
	}
	mediaType, ok = inlineMediaTypes[strings.ToLower(fileName[idx+1:])]
	return mediaType, ok
}

// EscapeContentURL 将 contentURL 中最后一次出现的原始文件名替换为百分号编码形式，
// 上游链接可能直接拼接了未编码的文件名。
func EscapeContentURL(contentURL, fileName string) string {
	if fileName == "" {
		return contentURL
	}
	escaped := url.PathEscape(fileName)
	if escaped == fileName {
		return contentURL
	}
	idx := strings.LastIndex(contentURL, fileName)
	if idx < 0 {
		return contentURL
	}
	return contentURL[:idx] + escaped + contentURL[idx+len(fileName):]
}
