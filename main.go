package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/zfile/internal/config"
	"github.com/any-hub/zfile/internal/doi"
	"github.com/any-hub/zfile/internal/logging"
	"github.com/any-hub/zfile/internal/metrics"
	"github.com/any-hub/zfile/internal/proxy"
	"github.com/any-hub/zfile/internal/server"
	"github.com/any-hub/zfile/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath    string
	checkOnly     bool
	showVersion   bool
	resolveTarget string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["resolver"] = cfg.Global.ResolverBase()
		fields["cache_size"] = cfg.Global.CacheSize
		fields["preload"] = len(cfg.Preload)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// CLI 启动遵循“配置 → 指标 → 上游 client → Resolver(三级缓存) → Fiber server”顺序，
	// 保证所有请求共享同一个 Resolver 与缓存实例。
	var m *metrics.Metrics
	if cfg.Global.MetricsEnabled {
		m = metrics.New()
	}
	httpClient := server.NewUpstreamClient(cfg)
	resolver, err := doi.NewResolver(doi.OptionsFromConfig(cfg, httpClient, logger, m))
	if err != nil {
		fmt.Fprintf(stdErr, "初始化解析器失败: %v\n", err)
		return 1
	}

	if opts.resolveTarget != "" {
		return runResolve(resolver, opts.resolveTarget)
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["resolver"] = cfg.Global.ResolverBase()
	fields["cache_size"] = cfg.Global.CacheSize
	fields["metrics"] = cfg.Global.MetricsEnabled
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if cfg.HasPreload() {
		go preload(resolver, cfg, logger)
	}

	proxyHandler := proxy.NewHandler(resolver, httpClient, logger, m)
	if err := startHTTPServer(cfg, resolver, proxyHandler, m, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("zfile", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		resolve    string
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 ZFILE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.StringVar(&resolve, "resolve", "", "解析 DOI/文件名 并以 JSON 输出结果后退出")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("ZFILE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:    path,
		checkOnly:     checkOnly,
		showVersion:   showVer,
		resolveTarget: strings.Trim(strings.TrimSpace(resolve), "/"),
	}, nil
}

// resolveOutput 是 -resolve 模式输出的 JSON 结构。
type resolveOutput struct {
	*doi.Result
	ContentURL string           `json:"content_url,omitempty"`
	Files      []doi.FileRecord `json:"files,omitempty"`
}

// runResolve 在命令行中执行一次解析，便于排查 DOI 与文件映射问题。
func runResolve(resolver *doi.Resolver, target string) int {
	ctx := context.Background()
	res, err := resolver.Resolve(ctx, target)
	if err != nil {
		fmt.Fprintf(stdErr, "解析失败: %v\n", err)
		return 1
	}

	out := resolveOutput{Result: res, ContentURL: res.ContentURL()}
	if res.File == nil {
		files, err := doi.ListFiles(res.LinkSet)
		if err != nil {
			fmt.Fprintf(stdErr, "解析失败: %v\n", err)
			return 1
		}
		out.Files = files
	}

	enc := json.NewEncoder(stdOut)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stdErr, "输出结果失败: %v\n", err)
		return 1
	}
	return 0
}

// preload 在后台预热配置中的 DOI，失败只记录日志。
func preload(resolver *doi.Resolver, cfg *config.Config, logger *logrus.Logger) {
	report := doi.Warm(context.Background(), resolver, cfg.Preload, cfg.Global.PreloadConcurrency)
	logger.WithFields(logrus.Fields{
		"action":     "preload",
		"loaded":     report.Loaded,
		"failed":     report.Failed,
		"elapsed_ms": report.Elapsed,
	}).Info("缓存预热完成")
}

func startHTTPServer(cfg *config.Config, resolver *doi.Resolver, proxyHandler server.ProxyHandler, m *metrics.Metrics, logger *logrus.Logger) error {
	app, err := buildApp(cfg, resolver, proxyHandler, m, logger)
	if err != nil {
		return err
	}

	port := cfg.Global.ListenPort
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
