package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"genai-image-web/common"

	"google.golang.org/genai"
)

// ModelCatalog 通过 genai SDK 列出账号可用的图片模型
type ModelCatalog struct {
	client *genai.Client
}

// NewModelCatalog 创建模型目录；API Key 为空时返回的目录在调用时报 ErrMissingAPIKey
func NewModelCatalog(ctx context.Context, cfg *common.Config) (*ModelCatalog, error) {
	if cfg.GeminiAPIKey == "" {
		return &ModelCatalog{}, nil
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	// 如果提供了自定义 Base URL，设置 HTTPOptions
	if cfg.GeminiBaseURL != "" && cfg.GeminiBaseURL != common.DefaultGeminiBaseURL {
		clientConfig.HTTPOptions = genai.HTTPOptions{
			BaseURL: cfg.GeminiBaseURL,
		}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &ModelCatalog{client: client}, nil
}

// ListImageModels 列出名称中包含 image / imagen 的模型
func (m *ModelCatalog) ListImageModels(ctx context.Context) ([]ModelInfo, error) {
	if m.client == nil {
		return nil, ErrMissingAPIKey
	}

	var models []*genai.Model
	page, err := m.client.Models.List(ctx, nil)
	for {
		if err != nil {
			if errors.Is(err, genai.ErrPageDone) {
				break
			}
			common.FromContext(ctx).WithError(err).Error("Failed to list models")
			return nil, fmt.Errorf("failed to list models: %w", err)
		}
		models = append(models, page.Items...)
		if page.NextPageToken == "" {
			break
		}
		page, err = page.Next(ctx)
	}

	return filterImageModels(models), nil
}

// filterImageModels 保留图片生成相关模型
func filterImageModels(models []*genai.Model) []ModelInfo {
	out := make([]ModelInfo, 0, len(models))
	for _, model := range models {
		if model == nil {
			continue
		}
		name := strings.ToLower(model.Name)
		if !strings.Contains(name, "image") {
			continue
		}
		out = append(out, ModelInfo{
			Name:             model.Name,
			DisplayName:      model.DisplayName,
			Description:      model.Description,
			SupportedActions: model.SupportedActions,
		})
	}
	return out
}
