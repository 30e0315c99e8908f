package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"genai-image-web/common"
	"genai-image-web/internal/genai/gemini"
	"genai-image-web/internal/handler"
	"genai-image-web/internal/oss"
	"genai-image-web/internal/tools"
	"genai-image-web/internal/utils"
	"genai-image-web/web"

	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 加载配置
	config, err := common.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 打印配置信息（隐藏敏感信息）
	common.WithFields(map[string]interface{}{
		"address":           config.GetServerAddr(),
		"base_url":          config.GeminiBaseURL,
		"image_model":       config.GeminiImageModel,
		"reference_backend": config.ReferenceBackend,
		"api_key":           utils.MaskAPIKey(config.GeminiAPIKey),
	}).Info("Server starting...")
	if !config.HasAPIKey() {
		common.Warn("GEMINI_API_KEY is not set, generation requests will fail until it is configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config); err != nil {
		common.Fatalf("Server error: %v", err)
	}
	common.Info("Server stopped")
}

// run 组装各组件并启动 HTTP 服务，ctx 取消后优雅退出
func run(ctx context.Context, config *common.Config) error {
	// 创建 OSS 客户端（用于读取 s3:// 图片地址）
	objects, err := oss.NewOSSClientFromConfig(config)
	if err != nil {
		return err
	}
	fetcher := utils.NewImageFetcher(nil, objects, config.ImageFetchAllowPrivate)

	// 创建 Gemini 客户端
	geminiClient, err := gemini.NewClientFromConfig(config, fetcher)
	if err != nil {
		return err
	}
	catalog, err := gemini.NewModelCatalog(ctx, config)
	if err != nil {
		return err
	}

	opts := handler.Options{
		Generator:      geminiClient,
		Models:         catalog,
		UploadMaxBytes: config.UploadMaxBytes,
		ImageModel:     geminiClient.ImageModel(),
		AllowedOrigins: config.CORSAllowedOrigins,
		Static:         web.Handler(),
	}

	if config.MCPEnabled {
		// 创建 MCP 服务器，并注册与 HTTP 接口相同的生成能力
		s := server.NewMCPServer(
			"GenAI Image Server",
			"1.0.0",
			server.WithToolCapabilities(true),
		)
		if err := tools.RegisterGeminiTools(s, geminiClient, fetcher, config.UploadMaxBytes); err != nil {
			return err
		}
		opts.MCP = server.NewStreamableHTTPServer(s, server.WithStateLess(true))
		common.WithField("endpoint", "/mcp").Info("MCP streamable HTTP endpoint enabled")
	}

	httpServer := &http.Server{
		Addr:              config.GetServerAddr(),
		Handler:           handler.NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		common.Infof("HTTP server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		common.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
