package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "5s"、"1m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数：监听端口、日志、上游解析与缓存容量。
type GlobalConfig struct {
	ListenPort         int      `mapstructure:"ListenPort"`
	LogLevel           string   `mapstructure:"LogLevel"`
	LogFilePath        string   `mapstructure:"LogFilePath"`
	LogMaxSize         int      `mapstructure:"LogMaxSize"`
	LogMaxBackups      int      `mapstructure:"LogMaxBackups"`
	LogCompress        bool     `mapstructure:"LogCompress"`
	ResolverURL        string   `mapstructure:"ResolverURL"`
	UpstreamTimeout    Duration `mapstructure:"UpstreamTimeout"`
	CacheSize          int      `mapstructure:"CacheSize"`
	StaticDir          string   `mapstructure:"StaticDir"`
	AllowOrigins       []string `mapstructure:"AllowOrigins"`
	MetricsEnabled     bool     `mapstructure:"MetricsEnabled"`
	PreloadConcurrency int      `mapstructure:"PreloadConcurrency"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	// Preload 列出启动时需要预热的 DOI，解析失败只记录日志。
	Preload []string `mapstructure:"Preload"`
}

// HasPreload 表示是否需要在启动阶段预热缓存。
func (c *Config) HasPreload() bool {
	return c != nil && len(c.Preload) > 0
}

// ResolverBase 返回以 "/" 结尾的 DOI 解析前缀，方便直接拼接 DOI。
func (g GlobalConfig) ResolverBase() string {
	base := strings.TrimSpace(g.ResolverURL)
	if base == "" {
		base = DefaultResolverURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}
