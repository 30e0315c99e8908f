package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"genai-image-web/internal/genai/gemini"
	"genai-image-web/internal/utils"
)

const (
	// multipart 表单中除文件外其他字段及边界的额外空间
	multipartSlack = 1 << 20
	// 内存中保留的表单数据上限，超出部分写入临时文件
	multipartMemory = 32 << 20

	// 组合形式（/api/generate 上传图片但未填写提示词）时使用的默认提示词
	defaultVariationPrompt = "Create a new variation of this image"
)

// generationInput 解析后的生成参数
type generationInput struct {
	prompt string
	ref    *gemini.ReferenceImage
}

// parseGenerateRequest 解析 /api/generate 请求
//
// 默认接受 JSON {prompt}；multipart 形式下 image 可选，附带图片时转为参考图生成。
func (h *Handler) parseGenerateRequest(w http.ResponseWriter, r *http.Request) (*generationInput, error) {
	if isMultipart(r) {
		form, err := h.readMultipart(w, r)
		if err != nil {
			return nil, err
		}
		defer form.cleanup()

		prompt := strings.TrimSpace(form.prompt)
		if form.file == nil {
			if prompt == "" {
				return nil, badRequest(msgMissingPrompt)
			}
			return &generationInput{prompt: prompt}, nil
		}
		if prompt == "" {
			prompt = defaultVariationPrompt
		}
		ref, err := h.readUpload(form.file, form.header)
		if err != nil {
			return nil, err
		}
		return &generationInput{prompt: prompt, ref: ref}, nil
	}

	req, err := h.decodeJSON(w, r)
	if err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, badRequest(msgMissingPrompt)
	}
	return &generationInput{prompt: prompt}, nil
}

// parseGenerateFromImageRequest 解析 /api/generate-from-image 请求
//
// 检查顺序：图片是否存在 → 提示词是否存在 → 大小与类型。
func (h *Handler) parseGenerateFromImageRequest(w http.ResponseWriter, r *http.Request) (*generationInput, error) {
	if isMultipart(r) {
		form, err := h.readMultipart(w, r)
		if err != nil {
			return nil, err
		}
		defer form.cleanup()

		if form.file == nil {
			return nil, badRequest(msgMissingImage)
		}
		prompt := strings.TrimSpace(form.prompt)
		if prompt == "" {
			return nil, badRequest(msgMissingPrompt)
		}
		ref, err := h.readUpload(form.file, form.header)
		if err != nil {
			return nil, err
		}
		return &generationInput{prompt: prompt, ref: ref}, nil
	}

	if !isJSON(r) {
		return nil, badRequest(msgUnsupportedBody)
	}
	req, err := h.decodeJSON(w, r)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Image) == "" {
		return nil, badRequest(msgMissingImage)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, badRequest(msgMissingPrompt)
	}
	ref, err := h.decodeBase64Image(req.Image, req.ImageMimeType)
	if err != nil {
		return nil, err
	}
	return &generationInput{prompt: prompt, ref: ref}, nil
}

type multipartInput struct {
	prompt string
	file   multipart.File
	header *multipart.FileHeader
	form   *multipart.Form
}

func (m *multipartInput) cleanup() {
	if m.file != nil {
		_ = m.file.Close()
	}
	if m.form != nil {
		_ = m.form.RemoveAll()
	}
}

// readMultipart 解析 multipart 表单，请求体整体大小受上传上限约束
func (h *Handler) readMultipart(w http.ResponseWriter, r *http.Request) (*multipartInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.uploadMaxBytes+multipartSlack)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, tooLarge(h.uploadMaxBytes)
		}
		return nil, badRequestWithDetails(msgInvalidForm, err)
	}

	in := &multipartInput{
		prompt: r.PostFormValue("prompt"),
		form:   r.MultipartForm,
	}
	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		in.file, in.header = file, header
	case errors.Is(err, http.ErrMissingFile):
	default:
		in.cleanup()
		return nil, badRequestWithDetails(msgInvalidForm, err)
	}
	return in, nil
}

// readUpload 读取上传文件并校验大小与类型
func (h *Handler) readUpload(file multipart.File, header *multipart.FileHeader) (*gemini.ReferenceImage, error) {
	if header.Size > h.uploadMaxBytes {
		return nil, tooLarge(h.uploadMaxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(file, h.uploadMaxBytes+1))
	if err != nil {
		return nil, badRequestWithDetails(msgInvalidForm, err)
	}
	if int64(len(data)) > h.uploadMaxBytes {
		return nil, tooLarge(h.uploadMaxBytes)
	}
	if len(data) == 0 {
		return nil, badRequest(msgMissingImage)
	}

	mimeType, ok := uploadMimeType(header.Header.Get("Content-Type"), data)
	if !ok {
		return nil, badRequest(msgNotImage)
	}
	return &gemini.ReferenceImage{Data: data, MimeType: mimeType}, nil
}

// decodeBase64Image 解析 JSON 请求中的 base64 图片（也接受 data URI）
func (h *Handler) decodeBase64Image(value, declaredMime string) (*gemini.ReferenceImage, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "data:") {
		data, mimeType, err := utils.DecodeDataURI(value)
		if err != nil {
			return nil, badRequestWithDetails(msgInvalidBase64, err)
		}
		return h.checkImage(data, mimeType)
	}

	// 快速估算解码后大小，避免为超大负载分配内存
	if int64(base64.StdEncoding.DecodedLen(len(value))) > h.uploadMaxBytes+2 {
		return nil, tooLarge(h.uploadMaxBytes)
	}
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, badRequestWithDetails(msgInvalidBase64, err)
	}
	return h.checkImage(data, declaredMime)
}

func (h *Handler) checkImage(data []byte, declaredMime string) (*gemini.ReferenceImage, error) {
	if int64(len(data)) > h.uploadMaxBytes {
		return nil, tooLarge(h.uploadMaxBytes)
	}
	if len(data) == 0 {
		return nil, badRequest(msgMissingImage)
	}
	mimeType, ok := uploadMimeType(declaredMime, data)
	if !ok {
		return nil, badRequest(msgNotImage)
	}
	return &gemini.ReferenceImage{Data: data, MimeType: mimeType}, nil
}

// decodeJSON 解析 JSON 请求体
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request) (*GenerationRequest, error) {
	// base64 膨胀约 4/3
	r.Body = http.MaxBytesReader(w, r.Body, h.uploadMaxBytes*4/3+multipartSlack)

	var req GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, tooLarge(h.uploadMaxBytes)
		}
		return nil, badRequestWithDetails(msgInvalidJSON, err)
	}
	return &req, nil
}

// uploadMimeType 优先使用声明的 image/* 类型，否则嗅探内容
func uploadMimeType(declared string, data []byte) (string, bool) {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mt, "image/") {
		return mt, true
	}
	if mt := utils.DetectImageMimeType(data); mt != "" {
		return mt, true
	}
	return "", false
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// isJSON 未声明 Content-Type 时按 JSON 处理
func isJSON(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && (mt == "application/json" || strings.HasSuffix(mt, "+json"))
}
