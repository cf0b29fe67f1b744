package doi

import (
	"errors"
	"fmt"
)

// 错误类别，调用方通过 errors.Is 区分。
var (
	// ErrResolution 表示 DOI 无法解析出 linkset（包括解析请求本身失败或超时）。
	ErrResolution = errors.New("doi resolution failed")
	// ErrMetadata 表示元数据获取失败、无法解析或字段非法。
	ErrMetadata = errors.New("metadata unavailable")
	// ErrNotFound 表示包内不存在指定文件。
	ErrNotFound = errors.New("file not found")
)

// Error 携带出错的 DOI/文件名与具体原因，Kind 为上面的哨兵错误之一。
type Error struct {
	Kind     error
	DOI      string
	FileName string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	target := e.DOI
	if e.FileName != "" {
		target += "/" + e.FileName
	}
	msg := fmt.Sprintf("%v: %s", e.Kind, target)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap 同时暴露类别与底层错误，errors.Is 可匹配任意一层。
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func resolutionError(doi, detail string, err error) error {
	return &Error{Kind: ErrResolution, DOI: doi, Detail: detail, Err: err}
}

func metadataError(doi, detail string, err error) error {
	return &Error{Kind: ErrMetadata, DOI: doi, Detail: detail, Err: err}
}

func notFoundError(doi, fileName string) error {
	return &Error{Kind: ErrNotFound, DOI: doi, FileName: fileName, Detail: "no file with this key"}
}
