package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", "仅支持 trace/debug/info/warn/error/fatal/panic")
	}
	if g.LogMaxSize < 0 {
		return newFieldError("Global.LogMaxSize", "不能为负数")
	}
	if g.LogMaxBackups < 0 {
		return newFieldError("Global.LogMaxBackups", "不能为负数")
	}
	if err := validateResolver(g.ResolverURL); err != nil {
		return fmt.Errorf("Global.ResolverURL: %w", err)
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.CacheSize <= 0 {
		return newFieldError("Global.CacheSize", "必须大于 0")
	}
	if g.PreloadConcurrency <= 0 {
		return newFieldError("Global.PreloadConcurrency", "必须大于 0")
	}
	for _, origin := range g.AllowOrigins {
		if strings.TrimSpace(origin) == "" {
			return newFieldError("Global.AllowOrigins", "不能包含空字符串")
		}
		if err := validateOrigin(origin); err != nil {
			return newFieldError("Global.AllowOrigins", err.Error())
		}
	}

	for i, item := range c.Preload {
		if strings.Count(item, "/") < 1 {
			return newFieldError(preloadField(i), fmt.Sprintf("不是合法的 DOI: %s", item))
		}
	}

	return nil
}

func validateResolver(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("缺少解析地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，解析地址: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("解析地址缺少 Host: %s", raw)
	}
	return nil
}

// validateOrigin 接受 "*" 或 scheme://host[:port] 形式的来源。
func validateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("非法来源: %s", origin)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("来源不能包含路径: %s", origin)
	}
	return nil
}
