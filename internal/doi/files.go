package doi

import (
	"context"
	"fmt"
	"strings"
)

// FileRecord 是包内单个可下载文件。
type FileRecord struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
	Content  string `json:"content,omitempty"`
}

// Digest 将 "md5:abcd" 形式的校验和拆为算法与摘要值，没有前缀时算法为空。
func (f FileRecord) Digest() (algorithm, value string) {
	algorithm, value, ok := strings.Cut(f.Checksum, ":")
	if !ok {
		return "", f.Checksum
	}
	return strings.ToLower(algorithm), value
}

// ListFiles 将 LinkSet 的 files 条目转换为 FileRecord，顺序与元数据一致。
// key 为空或 size 不是非负整数时返回 ErrMetadata，不会默认为 0。
func ListFiles(ls *LinkSet) ([]FileRecord, error) {
	if ls == nil {
		return nil, metadataError("", "empty link set", nil)
	}
	records := make([]FileRecord, 0, len(ls.Files))
	for i, entry := range ls.Files {
		if entry.Key == "" {
			return nil, metadataError(ls.DOI, fmt.Sprintf("files[%d] has no key", i), nil)
		}
		size, err := entry.Size.Int64()
		if err != nil {
			return nil, metadataError(ls.DOI, fmt.Sprintf("files[%d] (%s) has invalid size %q", i, entry.Key, entry.Size), err)
		}
		if size < 0 {
			return nil, metadataError(ls.DOI, fmt.Sprintf("files[%d] (%s) has negative size", i, entry.Key), nil)
		}
		records = append(records, FileRecord{
			ID:       entry.ID.String(),
			Key:      entry.Key,
			Size:     size,
			Checksum: entry.Checksum,
			Content:  entry.Links.Self,
		})
	}
	return records, nil
}

// Files 返回 DOI 对应包的文件列表，按 DOI 缓存。
func (r *Resolver) Files(ctx context.Context, doi string) ([]FileRecord, error) {
	files, _, err := r.listFiles(ctx, doi)
	return files, err
}

func (r *Resolver) listFiles(ctx context.Context, doi string) ([]FileRecord, bool, error) {
	files, outcome, err := r.files.Get(ctx, doi, func(loadCtx context.Context) ([]FileRecord, error) {
		ls, err := r.FetchMetadata(loadCtx, doi)
		if err != nil {
			return nil, err
		}
		return ListFiles(ls)
	})
	if err != nil {
		return nil, false, err
	}
	return files, outcome.Hit(), nil
}

// FindFile 按 key 精确匹配（区分大小写）文件；key 重复时返回第一条。
func (r *Resolver) FindFile(ctx context.Context, doi, name string) (FileRecord, error) {
	files, err := r.Files(ctx, doi)
	if err != nil {
		return FileRecord{}, err
	}
	return findFile(doi, files, name)
}

func findFile(doi string, files []FileRecord, name string) (FileRecord, error) {
	for _, f := range files {
		if f.Key == name {
			return f, nil
		}
	}
	return FileRecord{}, notFoundError(doi, name)
}
