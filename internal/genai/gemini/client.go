package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"genai-image-web/common"
	"genai-image-web/internal/utils"

	"google.golang.org/genai"
)

const (
	// 文生图提示词模板
	textPromptTemplate = "Generate exactly one image that follows the instructions below. Return only the image.\n\n%s"
	// 参考图（Gemini 后端）提示词模板
	referencePromptTemplate = "Using the attached image as a reference, generate a new image that follows these instructions: %s"
	// 参考图（Imagen 后端）提示词模板
	imagenPromptTemplate = "%s, inspired by the style and composition of the reference image"

	// 上游错误响应体最大读取长度之外的部分直接丢弃
	maxResponseBytes = 64 * 1024 * 1024
)

// Client Gemini / Imagen REST 客户端
//
// 直接调用 v1beta REST 接口，保留上游原始状态码与错误文本，
// 并以字符串形式透传 base64 图片数据。
type Client struct {
	httpClient *http.Client
	fetcher    ImageFetcher

	apiKey     string
	baseURL    string
	apiVersion string
	// 文生图模型与 Imagen 模型
	imageModel  string
	imagenModel string
	// 参考图生成后端: gemini 或 imagen
	referenceBackend string

	timeout time.Duration
}

// Config Gemini 客户端配置
type Config struct {
	APIKey           string
	BaseURL          string        // 为空时使用 common.DefaultGeminiBaseURL
	APIVersion       string        // 为空时使用 v1beta
	ImageModel       string        // 例如 models/gemini-2.5-flash-image
	ImagenModel      string        // 例如 models/imagen-3.0-generate-001
	ReferenceBackend string        // gemini 或 imagen，默认 gemini
	Timeout          time.Duration // 单次请求超时，0 表示不额外设置
	HTTPClient       *http.Client  // 为空时使用 http.DefaultClient
	Fetcher          ImageFetcher  // imageUrl 二次下载，为空时不支持 imageUrl 结果
}

// NewClientFromConfig 从应用配置创建 Gemini 客户端
func NewClientFromConfig(cfg *common.Config, fetcher ImageFetcher) (*Client, error) {
	return NewClient(Config{
		APIKey:           cfg.GeminiAPIKey,
		BaseURL:          cfg.GeminiBaseURL,
		APIVersion:       cfg.GeminiAPIVersion,
		ImageModel:       cfg.GeminiImageModel,
		ImagenModel:      cfg.ImagenModel,
		ReferenceBackend: cfg.ReferenceBackend,
		Timeout:          time.Duration(cfg.GenAITimeoutSeconds) * time.Second,
		Fetcher:          fetcher,
	})
}

// NewClient 创建新的 Gemini 客户端
//
// API Key 为空时依然返回客户端，调用时由 Ready 返回 ErrMissingAPIKey。
func NewClient(cfg Config) (*Client, error) {
	backend := strings.ToLower(cfg.ReferenceBackend)
	if backend == "" {
		backend = common.ReferenceBackendGemini
	}
	if backend != common.ReferenceBackendGemini && backend != common.ReferenceBackendImagen {
		return nil, fmt.Errorf("unsupported reference backend: %s", cfg.ReferenceBackend)
	}

	c := &Client{
		httpClient:       cfg.HTTPClient,
		fetcher:          cfg.Fetcher,
		apiKey:           cfg.APIKey,
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion:       strings.Trim(cfg.APIVersion, "/"),
		imageModel:       modelPath(cfg.ImageModel),
		imagenModel:      modelPath(cfg.ImagenModel),
		referenceBackend: backend,
		timeout:          cfg.Timeout,
	}

	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.baseURL == "" {
		c.baseURL = common.DefaultGeminiBaseURL
	}
	if c.apiVersion == "" {
		c.apiVersion = "v1beta"
	}
	if c.imageModel == "" {
		c.imageModel = common.DefaultImageModel
	}
	if c.imagenModel == "" {
		c.imagenModel = common.DefaultImagenModel
	}

	return c, nil
}

// Ready 检查 API Key 是否已配置
func (c *Client) Ready() error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// ImageModel 返回文生图模型名称
func (c *Client) ImageModel() string {
	return c.imageModel
}

// GenerateImage 文生图：根据文本提示生成图片
func (c *Client) GenerateImage(ctx context.Context, prompt string) (*Image, error) {
	if err := c.Ready(); err != nil {
		return nil, err
	}

	log := common.FromContext(ctx).WithField("model", c.imageModel)
	log.WithField("prompt", utils.TruncateForLog(prompt, 200)).Info("Calling Gemini generateContent")

	payload := generateContentRequest{
		Contents: []content{{
			Role:  string(genai.RoleUser),
			Parts: []part{{Text: fmt.Sprintf(textPromptTemplate, prompt)}},
		}},
		GenerationConfig: imageGenerationConfig(),
	}

	body, err := c.doRequest(ctx, c.imageModel, "generateContent", payload)
	if err != nil {
		return nil, err
	}

	return c.normalize(ctx, body)
}

// GenerateFromImage 参考图生成：根据参考图和文本提示生成新图片
func (c *Client) GenerateFromImage(ctx context.Context, prompt string, ref ReferenceImage) (*Image, error) {
	if err := c.Ready(); err != nil {
		return nil, err
	}
	if len(ref.Data) == 0 {
		return nil, fmt.Errorf("reference image is empty")
	}

	mimeType := ref.MimeType
	if mimeType == "" {
		mimeType = utils.ResolveImageMimeType("", ref.Data, "")
	}
	imageBase64 := base64.StdEncoding.EncodeToString(ref.Data)

	log := common.FromContext(ctx).WithFields(map[string]interface{}{
		"backend":   c.referenceBackend,
		"mime_type": mimeType,
		"size":      len(ref.Data),
	})

	var (
		body []byte
		err  error
	)
	if c.referenceBackend == common.ReferenceBackendImagen {
		log.WithField("model", c.imagenModel).Info("Calling Imagen generateImages with reference image")
		body, err = c.doRequest(ctx, c.imagenModel, "generateImages", imagenRequest{
			Prompt: fmt.Sprintf(imagenPromptTemplate, prompt),
			ReferenceImage: imagenReference{
				ImageBytes: imageBase64,
				MimeType:   mimeType,
			},
			NumberOfImages: 1,
			AspectRatio:    "1:1",
		})
	} else {
		log.WithField("model", c.imageModel).Info("Calling Gemini generateContent with reference image")
		body, err = c.doRequest(ctx, c.imageModel, "generateContent", generateContentRequest{
			Contents: []content{{
				Role: string(genai.RoleUser),
				Parts: []part{
					{InlineData: &inlineData{MimeType: mimeType, Data: imageBase64}},
					{Text: fmt.Sprintf(referencePromptTemplate, prompt)},
				},
			}},
			GenerationConfig: imageGenerationConfig(),
		})
	}
	if err != nil {
		return nil, err
	}

	return c.normalize(ctx, body)
}

// normalize 解析上游响应并提取第一张图片
func (c *Client) normalize(ctx context.Context, body []byte) (*Image, error) {
	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		common.FromContext(ctx).WithError(err).
			WithField("body", utils.TruncateForLog(string(body), 800)).
			Error("Failed to parse upstream response")
		return nil, &ResponseError{Body: string(body), Err: err}
	}

	img, err := extractImage(ctx, &resp, c.fetcher)
	if err != nil {
		common.FromContext(ctx).WithError(err).
			WithField("body", utils.TruncateForLog(string(body), 800)).
			Error("No image data found in upstream response")
		return nil, err
	}

	common.FromContext(ctx).WithFields(map[string]interface{}{
		"mime_type":   img.MimeType,
		"base64_size": len(img.Base64),
	}).Info("Image generated successfully")
	return img, nil
}

// doRequest 统一封装 HTTP 请求逻辑
func (c *Client) doRequest(ctx context.Context, model, method string, payload interface{}) ([]byte, error) {
	url := fmt.Sprintf("%s/%s/%s:%s", c.baseURL, c.apiVersion, model, method)

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	// 为单次请求设置超时
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// 使用请求头传递 API Key，避免 Key 出现在 URL 与日志中
	req.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	log := common.FromContext(ctx).WithFields(map[string]interface{}{
		"url":         url,
		"status_code": resp.StatusCode,
		"elapsed":     time.Since(start).String(),
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.WithField("body", utils.TruncateForLog(string(respBody), 800)).Error("Gemini API returned non-success status")
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	log.Debug("Gemini API response received")
	return respBody, nil
}

// imageGenerationConfig 请求同时返回文本与图片
func imageGenerationConfig() *generationConfig {
	return &generationConfig{
		ResponseModalities: []string{string(genai.ModalityText), string(genai.ModalityImage)},
	}
}

// modelPath 将模型名称规范为 models/<id> 形式
func modelPath(name string) string {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "models/") || strings.HasPrefix(name, "tunedModels/") {
		return name
	}
	return "models/" + name
}
