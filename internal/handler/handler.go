package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"genai-image-web/common"
	"genai-image-web/internal/genai/gemini"
	"genai-image-web/internal/utils"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/samber/lo"
)

// Handler 图片生成 HTTP 接口
//
// 每个请求独立处理，Handler 本身不保存任何请求间共享的可变状态。
type Handler struct {
	generator      gemini.ImageGenerator
	models         gemini.ModelLister
	uploadMaxBytes int64
	imageModel     string
}

// Options 路由配置
type Options struct {
	Generator      gemini.ImageGenerator
	Models         gemini.ModelLister // 可选，为空时 /api/models 返回 404
	UploadMaxBytes int64
	ImageModel     string
	AllowedOrigins []string
	// MCP streamable HTTP 端点，为空时不挂载
	MCP http.Handler
	// 静态前端，为空时不挂载
	Static http.Handler
}

// New 创建 Handler
func New(generator gemini.ImageGenerator, models gemini.ModelLister, uploadMaxBytes int64) *Handler {
	if uploadMaxBytes <= 0 {
		uploadMaxBytes = common.DefaultUploadMaxBytes
	}
	return &Handler{
		generator:      generator,
		models:         models,
		uploadMaxBytes: uploadMaxBytes,
	}
}

// NewRouter 注册所有路由并返回带中间件的 http.Handler
func NewRouter(opts Options) http.Handler {
	h := New(opts.Generator, opts.Models, opts.UploadMaxBytes)
	h.imageModel = opts.ImageModel

	router := mux.NewRouter()
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:       origins,
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:       []string{"*"},
		ExposedHeaders:       []string{"Content-Length", "Content-Type", requestIDHeader},
		OptionsSuccessStatus: http.StatusOK,
	})
	router.Use(c.Handler)

	// OPTIONS 预检直接返回 200，其余方法返回 405
	preflight := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	routes := map[string]http.HandlerFunc{
		"/api/generate":            h.handleGenerate,
		"/api/generate-from-image": h.handleGenerateFromImage,
	}
	for path, fn := range routes {
		router.HandleFunc(path, fn).Methods(http.MethodPost)
		router.HandleFunc(path, preflight).Methods(http.MethodOptions)
		router.HandleFunc(path, methodNotAllowed)
	}
	if opts.Models != nil {
		router.HandleFunc("/api/models", h.handleListModels).Methods(http.MethodGet)
	}

	router.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)

	if opts.MCP != nil {
		router.PathPrefix("/mcp").Handler(opts.MCP)
	}
	if opts.Static != nil {
		router.PathPrefix("/").Handler(opts.Static).Methods(http.MethodGet, http.MethodHead)
	}

	return withRequestLog(router)
}

// handleGenerate POST /api/generate
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := common.FromContext(ctx)
	log.Info("Received text-to-image request")

	if err := h.generator.Ready(); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	in, err := h.parseGenerateRequest(w, r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	log.WithField("prompt", utils.TruncateForLog(in.prompt, 200)).Info("Prompt accepted")

	var img *gemini.Image
	if in.ref != nil {
		img, err = h.generator.GenerateFromImage(ctx, in.prompt, *in.ref)
	} else {
		img, err = h.generator.GenerateImage(ctx, in.prompt)
	}
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeImage(w, img)
}

// handleGenerateFromImage POST /api/generate-from-image
func (h *Handler) handleGenerateFromImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := common.FromContext(ctx)
	log.Info("Received image-to-image request")

	if err := h.generator.Ready(); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	in, err := h.parseGenerateFromImageRequest(w, r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	log.WithFields(map[string]interface{}{
		"prompt":    utils.TruncateForLog(in.prompt, 200),
		"mime_type": in.ref.MimeType,
		"size":      len(in.ref.Data),
	}).Info("Reference image accepted")

	img, err := h.generator.GenerateFromImage(ctx, in.prompt, *in.ref)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeImage(w, img)
}

// handleListModels GET /api/models
func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.models.ListImageModels(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, ModelsResponse{
		Models: lo.Map(models, func(m gemini.ModelInfo, _ int) ModelEntry {
			return ModelEntry{Name: m.Name, DisplayName: m.DisplayName, Description: m.Description}
		}),
	})
}

// handleHealth GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		APIKeyConfigured: h.generator.Ready() == nil,
		ImageModel:       h.imageModel,
	})
}

func (h *Handler) writeImage(w http.ResponseWriter, img *gemini.Image) {
	writeJSON(w, http.StatusOK, GenerationResult{
		Success:  true,
		Image:    img.Base64,
		MimeType: img.MimeType,
	})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, result := errorResult(err)
	entry := common.FromContext(ctx).WithError(err).WithField("status_code", status)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}
	writeJSON(w, status, result)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, GenerationResult{Error: msgMethodNotAllow})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
