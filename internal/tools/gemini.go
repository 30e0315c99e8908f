package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"genai-image-web/common"
	"genai-image-web/internal/genai/gemini"
	"genai-image-web/internal/utils"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	ToolGenerateImage              = "generate_image"
	ToolGenerateImageFromReference = "generate_image_from_reference"
)

// geminiTools MCP tool 处理函数，与 HTTP 接口共用同一个 ImageGenerator
type geminiTools struct {
	generator gemini.ImageGenerator
	fetcher   gemini.ImageFetcher
	maxBytes  int64
}

// RegisterGeminiTools 注册 Gemini 图片生成的 MCP tools
//
// 约定工具列表：
//   - generate_image                  文生图，返回图片内容
//   - generate_image_from_reference   参考图 + 文本生成新图片，参考图来自 image_url 或 image_base64
//
// fetcher 用于下载 image_url 指向的参考图，为空时仅支持 image_base64。
func RegisterGeminiTools(s *server.MCPServer, generator gemini.ImageGenerator, fetcher gemini.ImageFetcher, maxBytes int64) error {
	if generator == nil {
		return fmt.Errorf("image generator is required")
	}
	if maxBytes <= 0 {
		maxBytes = common.DefaultUploadMaxBytes
	}
	t := &geminiTools{generator: generator, fetcher: fetcher, maxBytes: maxBytes}

	generateImageTool := mcp.NewTool(
		ToolGenerateImage,
		mcp.WithDescription("Generate an image with Gemini from a text prompt. Returns the generated image."),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("Text prompt describing the image to generate"),
		),
	)
	s.AddTool(generateImageTool, t.handleGenerateImage)

	referenceTool := mcp.NewTool(
		ToolGenerateImageFromReference,
		mcp.WithDescription("Generate a new image from a reference image and a text prompt. Provide either image_url or image_base64."),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("Text prompt describing the image to generate from the reference"),
		),
		mcp.WithString("image_url",
			mcp.Description("URL of the reference image (http(s), s3:// or data URI)"),
		),
		mcp.WithString("image_base64",
			mcp.Description("Base64 encoded reference image, used when image_url is not given"),
		),
		mcp.WithString("mime_type",
			mcp.Description("MIME type of image_base64, detected from the content when omitted"),
		),
	)
	s.AddTool(referenceTool, t.handleGenerateFromReference)

	return nil
}

func (t *geminiTools) handleGenerateImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := t.generator.Ready(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	prompt, err := req.RequireString("prompt")
	if err != nil || strings.TrimSpace(prompt) == "" {
		return mcp.NewToolResultError("prompt parameter is required"), nil
	}

	img, err := t.generator.GenerateImage(ctx, strings.TrimSpace(prompt))
	if err != nil {
		return toolError("failed to generate image", err), nil
	}
	return imageResult(img), nil
}

func (t *geminiTools) handleGenerateFromReference(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := t.generator.Ready(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	prompt, err := req.RequireString("prompt")
	if err != nil || strings.TrimSpace(prompt) == "" {
		return mcp.NewToolResultError("prompt parameter is required"), nil
	}

	ref, err := t.loadReference(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	img, err := t.generator.GenerateFromImage(ctx, strings.TrimSpace(prompt), *ref)
	if err != nil {
		return toolError("failed to generate image from reference", err), nil
	}
	return imageResult(img), nil
}

// loadReference 从 image_url 或 image_base64 读取参考图
func (t *geminiTools) loadReference(ctx context.Context, req mcp.CallToolRequest) (*gemini.ReferenceImage, error) {
	imageURL := strings.TrimSpace(req.GetString("image_url", ""))
	imageBase64 := strings.TrimSpace(req.GetString("image_base64", ""))

	var (
		data     []byte
		mimeType string
		err      error
	)
	switch {
	case imageURL != "":
		if t.fetcher == nil {
			return nil, fmt.Errorf("image_url is not supported, use image_base64")
		}
		data, mimeType, err = t.fetcher.Fetch(ctx, imageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch reference image: %w", err)
		}
	case imageBase64 != "":
		data, err = base64.StdEncoding.DecodeString(imageBase64)
		if err != nil {
			return nil, fmt.Errorf("image_base64 is not valid base64: %w", err)
		}
		mimeType = req.GetString("mime_type", "")
	default:
		return nil, fmt.Errorf("either image_url or image_base64 is required")
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("reference image is empty")
	}
	if int64(len(data)) > t.maxBytes {
		return nil, fmt.Errorf("reference image exceeds the size limit of %d bytes", t.maxBytes)
	}
	return &gemini.ReferenceImage{
		Data:     data,
		MimeType: utils.ResolveImageMimeType(mimeType, data, imageURL),
	}, nil
}

func imageResult(img *gemini.Image) *mcp.CallToolResult {
	return mcp.NewToolResultImage(fmt.Sprintf("Generated image (%s)", img.MimeType), img.Base64, img.MimeType)
}

// toolError 上游错误附带状态码与原始响应，便于调用方排查
func toolError(msg string, err error) *mcp.CallToolResult {
	var apiErr *gemini.APIError
	if errors.As(err, &apiErr) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: upstream status %d: %s", msg, apiErr.StatusCode, apiErr.Body))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", msg, err))
}
