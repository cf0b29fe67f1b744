package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/any-hub/zfile/internal/doi/doitest"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("ZFILE_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestParseCLIFlagsResolveTarget(t *testing.T) {
	t.Setenv("ZFILE_CONFIG", "")
	opts, err := parseCLIFlags([]string{"-resolve", " /10.5281/zenodo.1/a.txt/ "})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.resolveTarget != "10.5281/zenodo.1/a.txt" {
		t.Fatalf("resolve 目标应去除首尾 /，得到 %q", opts.resolveTarget)
	}
	if opts.configPath != "config.toml" {
		t.Fatalf("默认配置路径应为 config.toml，得到 %s", opts.configPath)
	}
}

func TestParseCLIFlagsRejectsUnknown(t *testing.T) {
	if _, err := parseCLIFlags([]string{"-bogus"}); err == nil {
		t.Fatalf("未知参数应报错")
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d (stderr=%s)", code, stdErrBuffer().String())
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "missing.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
	if !strings.Contains(stdErrBuffer().String(), "加载配置失败") {
		t.Fatalf("stderr 应包含错误原因: %s", stdErrBuffer().String())
	}
}

func TestRunVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOutBuffer().String(), "zfile") {
		t.Fatalf("version 输出应包含 zfile 标识")
	}
}

func TestRunResolvePrintsResult(t *testing.T) {
	upstream := doitest.NewUpstream(t)
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "warn"
ResolverURL = "%s"
UpstreamTimeout = "2s"
MetricsEnabled = false
`, upstream.ResolverURL()))

	useBufferWriters(t)
	code := run(cliOptions{configPath: configPath, resolveTarget: doitest.KnownDOI + "/index.html"})
	if code != 0 {
		t.Fatalf("解析应成功，得到 %d (stderr=%s)", code, stdErrBuffer().String())
	}

	var out struct {
		DOI        string `json:"doi"`
		File       string `json:"file"`
		MediaType  string `json:"media_type"`
		ContentURL string `json:"content_url"`
		Record     struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		} `json:"record"`
	}
	if err := json.Unmarshal(stdOutBuffer().Bytes(), &out); err != nil {
		t.Fatalf("输出应为 JSON: %v (%s)", err, stdOutBuffer().String())
	}
	if out.DOI != doitest.KnownDOI || out.File != "index.html" || out.MediaType != "text/html" {
		t.Fatalf("解析结果不符合预期: %+v", out)
	}
	if out.Record.Key != "index.html" || out.Record.Size != 1214 {
		t.Fatalf("文件记录不符合预期: %+v", out.Record)
	}
	if !strings.HasSuffix(out.ContentURL, "/files/index.html/content") {
		t.Fatalf("content_url 不符合预期: %s", out.ContentURL)
	}
}

func TestRunResolveListsFilesForBareDOI(t *testing.T) {
	upstream := doitest.NewUpstream(t)
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "warn"
ResolverURL = "%s"
`, upstream.ResolverURL()))

	useBufferWriters(t)
	code := run(cliOptions{configPath: configPath, resolveTarget: doitest.KnownDOI})
	if code != 0 {
		t.Fatalf("解析应成功，得到 %d (stderr=%s)", code, stdErrBuffer().String())
	}
	var out struct {
		Files []struct {
			Key string `json:"key"`
		} `json:"files"`
	}
	if err := json.Unmarshal(stdOutBuffer().Bytes(), &out); err != nil {
		t.Fatalf("输出应为 JSON: %v", err)
	}
	if len(out.Files) != 3 {
		t.Fatalf("应列出 3 个文件，得到 %d", len(out.Files))
	}
}

func TestRunResolveFailure(t *testing.T) {
	upstream := doitest.NewUpstream(t)
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "warn"
ResolverURL = "%s"
`, upstream.ResolverURL()))

	useBufferWriters(t)
	code := run(cliOptions{configPath: configPath, resolveTarget: doitest.KnownDOI + "/missing.bin"})
	if code == 0 {
		t.Fatalf("文件不存在时应返回非零退出码")
	}
	if !strings.Contains(stdErrBuffer().String(), "file not found") {
		t.Fatalf("stderr 应包含 not found 信息: %s", stdErrBuffer().String())
	}
}
