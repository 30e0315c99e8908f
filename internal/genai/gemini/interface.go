package gemini

import "context"

// ImageGenerator 图片生成接口，HTTP 接口与 MCP tools 共用
type ImageGenerator interface {
	// Ready 检查必需配置（API Key）是否就绪
	Ready() error
	// GenerateImage 文生图
	GenerateImage(ctx context.Context, prompt string) (*Image, error)
	// GenerateFromImage 参考图 + 文本生成新图片
	GenerateFromImage(ctx context.Context, prompt string, ref ReferenceImage) (*Image, error)
}

// ModelLister 列出可用于图片生成的模型
type ModelLister interface {
	ListImageModels(ctx context.Context) ([]ModelInfo, error)
}

// ImageFetcher 根据 URL 下载图片（imageUrl 二次下载）
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, string, error)
}
