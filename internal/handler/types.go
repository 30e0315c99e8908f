package handler

// GenerationRequest 生成请求（JSON 形式）
//
// Image 为 base64 字符串，仅 /api/generate-from-image 的 JSON 变体使用。
type GenerationRequest struct {
	Prompt        string `json:"prompt"`
	Image         string `json:"image,omitempty"`
	ImageMimeType string `json:"mimeType,omitempty"`
}

// GenerationResult 统一的响应结构：成功时填充 image，失败时填充 error
type GenerationResult struct {
	Success  bool   `json:"success,omitempty"`
	Image    string `json:"image,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Error    string `json:"error,omitempty"`
	Details  string `json:"details,omitempty"`
	// 未分类错误的类别，如 Timeout
	ErrorType string `json:"errorType,omitempty"`
	// 上游错误时透传的原始状态码
	Status int `json:"status,omitempty"`
}

// ModelsResponse GET /api/models 响应
type ModelsResponse struct {
	Models []ModelEntry `json:"models"`
}

// ModelEntry 模型条目
type ModelEntry struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
}

// HealthResponse GET /healthz 响应
type HealthResponse struct {
	Status           string `json:"status"`
	APIKeyConfigured bool   `json:"apiKeyConfigured"`
	ImageModel       string `json:"imageModel,omitempty"`
}
