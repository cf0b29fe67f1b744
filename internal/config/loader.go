package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// DefaultResolverURL 是 DOI 内容协商的入口。
	DefaultResolverURL = "https://doi.org/"
	// DefaultUpstreamTimeout 约束每一次上游请求（解析、元数据、正文）。
	DefaultUpstreamTimeout = 5 * time.Second
	// DefaultCacheSize 是每一级解析缓存的 LRU 容量。
	DefaultCacheSize = 100
	// DefaultListenPort 是未配置时的监听端口。
	DefaultListenPort = 4000
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	cfg.Preload = normalizePreload(cfg.Preload)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Global.StaticDir != "" {
		absStatic, err := filepath.Abs(cfg.Global.StaticDir)
		if err != nil {
			return nil, fmt.Errorf("无法解析静态目录: %w", err)
		}
		cfg.Global.StaticDir = absStatic
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", DefaultListenPort)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("ResolverURL", DefaultResolverURL)
	v.SetDefault("UpstreamTimeout", "5s")
	v.SetDefault("CacheSize", DefaultCacheSize)
	v.SetDefault("StaticDir", "./static")
	v.SetDefault("AllowOrigins", []string{"*"})
	v.SetDefault("MetricsEnabled", true)
	v.SetDefault("PreloadConcurrency", 4)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = DefaultListenPort
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(DefaultUpstreamTimeout)
	}
	if g.PreloadConcurrency <= 0 {
		g.PreloadConcurrency = 1
	}
	if len(g.AllowOrigins) == 0 {
		g.AllowOrigins = []string{"*"}
	}
	g.LogLevel = strings.ToLower(strings.TrimSpace(g.LogLevel))
}

// normalizePreload 去掉空白与首尾 "/"，并按出现顺序去重。
func normalizePreload(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		item = strings.Trim(strings.TrimSpace(item), "/")
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		result = append(result, item)
	}
	return result
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
