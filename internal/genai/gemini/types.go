package gemini

import "google.golang.org/genai"

// Image 归一化后的生成结果，Base64 为上游返回的原始字符串
type Image struct {
	Base64   string
	MimeType string
}

// ReferenceImage 用户上传的参考图
type ReferenceImage struct {
	Data     []byte
	MimeType string
}

// ModelInfo 模型信息
type ModelInfo struct {
	Name             string   `json:"name"`
	DisplayName      string   `json:"displayName,omitempty"`
	Description      string   `json:"description,omitempty"`
	SupportedActions []string `json:"supportedActions,omitempty"`
}

// generateContentRequest v1beta generateContent 请求体
type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

// inlineData 的 Data 保持为字符串，保证 base64 原样透传
type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data"`
}

// imagenRequest generateImages 请求体
type imagenRequest struct {
	Prompt         string          `json:"prompt"`
	ReferenceImage imagenReference `json:"reference_image"`
	NumberOfImages int             `json:"number_of_images"`
	AspectRatio    string          `json:"aspect_ratio"`
}

type imagenReference struct {
	ImageBytes string `json:"image_bytes"`
	MimeType   string `json:"mime_type"`
}

// generateResponse 兼容多种上游返回结构：
//
//	{"generatedImages":[{"imageBase64":"..."}]}
//	{"generatedImages":[{"imageUrl":"https://..."}]}
//	{"generatedImages":[{"image":{"imageBytes":"...","mimeType":"image/png"}}]}
//	{"predictions":[{"bytesBase64Encoded":"...","mimeType":"image/png"}]}
//	{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"..."}}]}}]}
type generateResponse struct {
	GeneratedImages []generatedImage `json:"generatedImages,omitempty"`
	Predictions     []prediction     `json:"predictions,omitempty"`
	Candidates      []candidate      `json:"candidates,omitempty"`
	PromptFeedback  *promptFeedback  `json:"promptFeedback,omitempty"`
}

type generatedImage struct {
	ImageBase64 string       `json:"imageBase64,omitempty"`
	ImageURL    string       `json:"imageUrl,omitempty"`
	MimeType    string       `json:"mimeType,omitempty"`
	Image       *imagenImage `json:"image,omitempty"`
}

type imagenImage struct {
	ImageBytes string `json:"imageBytes,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`
}

type prediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	MimeType           string `json:"mimeType,omitempty"`
}

type candidate struct {
	Content       *content           `json:"content,omitempty"`
	FinishReason  genai.FinishReason `json:"finishReason,omitempty"`
	FinishMessage string             `json:"finishMessage,omitempty"`
}

type promptFeedback struct {
	BlockReason        string `json:"blockReason,omitempty"`
	BlockReasonMessage string `json:"blockReasonMessage,omitempty"`
}
