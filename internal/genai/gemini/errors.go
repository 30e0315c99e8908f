package gemini

import (
	"errors"
	"fmt"

	"genai-image-web/internal/utils"
)

// ErrMissingAPIKey 未配置 GEMINI_API_KEY
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is not configured")

// APIError 上游返回非 2xx 状态码
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini api error: status %d, body: %s", e.StatusCode, utils.TruncateForLog(e.Body, 512))
}

// ResponseError 上游返回 2xx 但响应体无法解析
type ResponseError struct {
	Body string
	Err  error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("failed to parse gemini response: %v", e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// NoImageError 上游响应中没有任何图片数据（例如只返回了文本）
type NoImageError struct {
	Details      string
	FinishReason string
}

func (e *NoImageError) Error() string {
	if e.FinishReason != "" {
		return fmt.Sprintf("no image data in response (finish reason: %s): %s", e.FinishReason, e.Details)
	}
	return fmt.Sprintf("no image data in response: %s", e.Details)
}

// FetchError imageUrl 二次下载失败
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch generated image %s: %v", utils.TruncateForLog(e.URL, 128), e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
