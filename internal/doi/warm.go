package doi

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// WarmReport 汇总一次预热的结果。
type WarmReport struct {
	Loaded  int   `json:"loaded"`
	Failed  int   `json:"failed"`
	Elapsed int64 `json:"elapsed_ms"`
}

// Warm 以不超过 limit 的并发度预先解析 dois，使三层缓存在首个请求前就绪。
// 单个 DOI 失败只记录日志，不影响其余条目；ctx 取消时尚未开始的条目计为失败。
func Warm(ctx context.Context, r *Resolver, dois []string, limit int) WarmReport {
	started := time.Now()
	if limit <= 0 {
		limit = 1
	}
	var loaded, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(limit)
	for _, doi := range dois {
		doi := doi
		g.Go(func() error {
			if ctx.Err() != nil {
				failed.Add(1)
				return nil
			}
			files, err := r.Files(ctx, doi)
			if err != nil {
				failed.Add(1)
				r.logger.WithFields(logrus.Fields{"action": "preload", "doi": doi}).
					WithError(err).Warn("preload_failed")
				return nil
			}
			loaded.Add(1)
			r.logger.WithFields(logrus.Fields{"action": "preload", "doi": doi, "files": len(files)}).
				Debug("preload_complete")
			return nil
		})
	}
	_ = g.Wait()

	return WarmReport{
		Loaded:  int(loaded.Load()),
		Failed:  int(failed.Load()),
		Elapsed: time.Since(started).Milliseconds(),
	}
}
