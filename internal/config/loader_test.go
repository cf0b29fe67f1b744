package config

import (
	"testing"
	"time"
)

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
UpstreamTimeout = "boom"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsSecondsAsDuration(t *testing.T) {
	cfg := `
UpstreamTimeout = 12
`
	path := writeTempConfig(t, cfg)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Global.UpstreamTimeout.DurationValue() != 12*time.Second {
		t.Fatalf("纯数字应按秒解析，得到 %s", loaded.Global.UpstreamTimeout.DurationValue())
	}
}

func TestLoadNormalizesPreload(t *testing.T) {
	cfg := `
Preload = ["/10.5281/zenodo.1/", "10.5281/zenodo.1", "  ", "10.5281/zenodo.2"]
`
	path := writeTempConfig(t, cfg)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if len(loaded.Preload) != 2 {
		t.Fatalf("Preload 应去重并去除空项，得到 %v", loaded.Preload)
	}
	if loaded.Preload[0] != "10.5281/zenodo.1" || loaded.Preload[1] != "10.5281/zenodo.2" {
		t.Fatalf("Preload 顺序或内容异常: %v", loaded.Preload)
	}
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	path := writeTempConfig(t, `LogLevel = "loud"`)
	if _, err := Load(path); err == nil {
		t.Fatalf("未知日志级别应失败")
	}
}
