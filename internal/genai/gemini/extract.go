package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"genai-image-web/common"
	"genai-image-web/internal/utils"

	"github.com/samber/lo"
	"google.golang.org/genai"
)

const defaultNoImageDetails = "the model did not return image data (it may have returned text only)"

// extractImage 按顺序查找第一张图片：
// generatedImages（imageBase64 / image.imageBytes / imageUrl）→ predictions → candidates.inlineData
func extractImage(ctx context.Context, resp *generateResponse, fetcher ImageFetcher) (*Image, error) {
	for _, gi := range resp.GeneratedImages {
		if gi.ImageBase64 != "" {
			return newImage(gi.ImageBase64, gi.MimeType), nil
		}
		if gi.Image != nil && gi.Image.ImageBytes != "" {
			return newImage(gi.Image.ImageBytes, lo.Ternary(gi.Image.MimeType != "", gi.Image.MimeType, gi.MimeType)), nil
		}
		if gi.ImageURL != "" {
			return fetchImage(ctx, gi.ImageURL, gi.MimeType, fetcher)
		}
	}

	for _, p := range resp.Predictions {
		if p.BytesBase64Encoded != "" {
			return newImage(p.BytesBase64Encoded, p.MimeType), nil
		}
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		imagePart, ok := lo.Find(cand.Content.Parts, func(p part) bool {
			return p.InlineData != nil && p.InlineData.Data != ""
		})
		if ok {
			return newImage(imagePart.InlineData.Data, imagePart.InlineData.MimeType), nil
		}
	}

	return nil, noImageError(resp)
}

// fetchImage 下载 imageUrl 指向的图片并编码为 base64
func fetchImage(ctx context.Context, rawURL, declaredMime string, fetcher ImageFetcher) (*Image, error) {
	if fetcher == nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("image fetcher is not configured")}
	}

	common.FromContext(ctx).WithField("image_url", utils.TruncateForLog(rawURL, 128)).Info("Fetching generated image from url")
	data, mimeType, err := fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if len(data) == 0 {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("empty image body")}
	}

	return newImage(base64.StdEncoding.EncodeToString(data), lo.Ternary(mimeType != "", mimeType, declaredMime)), nil
}

// newImage MIME 类型缺失时默认为 image/png
func newImage(data, mimeType string) *Image {
	if mimeType == "" {
		mimeType = utils.DefaultImageMimeType
	}
	return &Image{Base64: data, MimeType: mimeType}
}

// noImageError 汇总诊断信息：文本内容、结束说明、结束原因、拦截原因
func noImageError(resp *generateResponse) *NoImageError {
	e := &NoImageError{Details: defaultNoImageDetails}

	var texts []string
	var finishMessage string
	for _, cand := range resp.Candidates {
		if e.FinishReason == "" && cand.FinishReason != "" &&
			cand.FinishReason != genai.FinishReasonStop && cand.FinishReason != genai.FinishReasonUnspecified {
			e.FinishReason = string(cand.FinishReason)
		}
		if finishMessage == "" {
			finishMessage = strings.TrimSpace(cand.FinishMessage)
		}
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t := strings.TrimSpace(p.Text); t != "" {
				texts = append(texts, t)
			}
		}
	}

	switch {
	case len(texts) > 0:
		e.Details = texts[0]
	case finishMessage != "":
		e.Details = finishMessage
	case resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "":
		e.FinishReason = resp.PromptFeedback.BlockReason
		e.Details = lo.Ternary(resp.PromptFeedback.BlockReasonMessage != "",
			resp.PromptFeedback.BlockReasonMessage, "the prompt was blocked by the upstream API")
	}
	return e
}
