package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"genai-image-web/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Path   string
	APIKey string
	Body   map[string]interface{}
}

// newUpstream 启动一个假的 Gemini 服务，记录收到的请求并返回固定响应
func newUpstream(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Path = r.URL.Path
		captured.APIKey = r.Header.Get("x-goog-api-key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func newTestClient(t *testing.T, baseURL string, opts ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		ImageModel: "gemini-2.5-flash-image",
		Timeout:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

const inlineImageResponse = `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"aW1hZ2U="}}]},"finishReason":"STOP"}]}`

func TestNewClient_Defaults(t *testing.T) {
	client, err := NewClient(Config{})
	require.NoError(t, err)

	assert.Equal(t, common.DefaultGeminiBaseURL, client.baseURL)
	assert.Equal(t, "v1beta", client.apiVersion)
	assert.Equal(t, common.DefaultImageModel, client.ImageModel())
	assert.Equal(t, common.DefaultImagenModel, client.imagenModel)
	assert.Equal(t, common.ReferenceBackendGemini, client.referenceBackend)
	assert.ErrorIs(t, client.Ready(), ErrMissingAPIKey)
}

func TestNewClient_UnsupportedBackend(t *testing.T) {
	_, err := NewClient(Config{ReferenceBackend: "dalle"})
	assert.ErrorContains(t, err, "unsupported reference backend")
}

func TestModelPath(t *testing.T) {
	assert.Equal(t, "models/gemini-2.5-flash-image", modelPath("gemini-2.5-flash-image"))
	assert.Equal(t, "models/gemini-2.5-flash-image", modelPath("models/gemini-2.5-flash-image"))
	assert.Equal(t, "models/imagen-3.0", modelPath(" /models/imagen-3.0/ "))
	assert.Equal(t, "tunedModels/custom", modelPath("tunedModels/custom"))
	assert.Equal(t, "", modelPath("  "))
}

func TestGenerateImage_Success(t *testing.T) {
	srv, captured := newUpstream(t, http.StatusOK, inlineImageResponse)
	client := newTestClient(t, srv.URL)

	img, err := client.GenerateImage(context.Background(), "a red fox")
	require.NoError(t, err)
	assert.Equal(t, "aW1hZ2U=", img.Base64)
	assert.Equal(t, "image/png", img.MimeType)

	assert.Equal(t, "/v1beta/models/gemini-2.5-flash-image:generateContent", captured.Path)
	assert.Equal(t, "test-key", captured.APIKey)

	contents := captured.Body["contents"].([]interface{})
	require.Len(t, contents, 1)
	first := contents[0].(map[string]interface{})
	assert.Equal(t, "user", first["role"])
	parts := first["parts"].([]interface{})
	require.Len(t, parts, 1)
	assert.Contains(t, parts[0].(map[string]interface{})["text"], "a red fox")

	genCfg := captured.Body["generationConfig"].(map[string]interface{})
	assert.ElementsMatch(t, []interface{}{"TEXT", "IMAGE"}, genCfg["responseModalities"])
}

func TestGenerateImage_MissingAPIKey(t *testing.T) {
	srv, captured := newUpstream(t, http.StatusOK, inlineImageResponse)
	client := newTestClient(t, srv.URL, func(c *Config) { c.APIKey = "" })

	_, err := client.GenerateImage(context.Background(), "a red fox")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Empty(t, captured.Path, "upstream must not be called without a key")
}

func TestGenerateImage_UpstreamErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "model not found", status: http.StatusNotFound, body: `{"error":{"code":404,"message":"models/nope is not found"}}`},
		{name: "quota exceeded", status: http.StatusTooManyRequests, body: `{"error":{"code":429,"status":"RESOURCE_EXHAUSTED"}}`},
		{name: "internal", status: http.StatusInternalServerError, body: `upstream exploded`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newUpstream(t, tc.status, tc.body)
			client := newTestClient(t, srv.URL)

			_, err := client.GenerateImage(context.Background(), "prompt")
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, tc.body, apiErr.Body)
		})
	}
}

func TestGenerateImage_MalformedBody(t *testing.T) {
	srv, _ := newUpstream(t, http.StatusOK, `not json`)
	client := newTestClient(t, srv.URL)

	_, err := client.GenerateImage(context.Background(), "prompt")
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "not json", respErr.Body)
}

func TestGenerateImage_TextOnly(t *testing.T) {
	srv, _ := newUpstream(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"Sorry, I can only describe it."}]}}]}`)
	client := newTestClient(t, srv.URL)

	_, err := client.GenerateImage(context.Background(), "prompt")
	var noImage *NoImageError
	require.ErrorAs(t, err, &noImage)
	assert.Equal(t, "Sorry, I can only describe it.", noImage.Details)
}

func TestGenerateFromImage_GeminiBackend(t *testing.T) {
	srv, captured := newUpstream(t, http.StatusOK, inlineImageResponse)
	client := newTestClient(t, srv.URL)

	img, err := client.GenerateFromImage(context.Background(), "make it blue", ReferenceImage{
		Data:     []byte("ref"),
		MimeType: "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, "aW1hZ2U=", img.Base64)

	assert.Equal(t, "/v1beta/models/gemini-2.5-flash-image:generateContent", captured.Path)
	parts := captured.Body["contents"].([]interface{})[0].(map[string]interface{})["parts"].([]interface{})
	require.Len(t, parts, 2)

	inline := parts[0].(map[string]interface{})["inlineData"].(map[string]interface{})
	assert.Equal(t, "image/jpeg", inline["mimeType"])
	assert.Equal(t, "cmVm", inline["data"])
	assert.Contains(t, parts[1].(map[string]interface{})["text"], "make it blue")
}

func TestGenerateFromImage_ImagenBackend(t *testing.T) {
	srv, captured := newUpstream(t, http.StatusOK, `{"generatedImages":[{"imageBase64":"b3V0","mimeType":"image/jpeg"}]}`)
	client := newTestClient(t, srv.URL, func(c *Config) {
		c.ReferenceBackend = common.ReferenceBackendImagen
		c.ImagenModel = "imagen-3.0-generate-001"
	})

	img, err := client.GenerateFromImage(context.Background(), "a watercolor city", ReferenceImage{
		Data:     []byte("ref"),
		MimeType: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, "b3V0", img.Base64)
	assert.Equal(t, "image/jpeg", img.MimeType)

	assert.Equal(t, "/v1beta/models/imagen-3.0-generate-001:generateImages", captured.Path)
	assert.Equal(t, "a watercolor city, inspired by the style and composition of the reference image", captured.Body["prompt"])
	assert.EqualValues(t, 1, captured.Body["number_of_images"])
	assert.Equal(t, "1:1", captured.Body["aspect_ratio"])

	ref := captured.Body["reference_image"].(map[string]interface{})
	assert.Equal(t, "cmVm", ref["image_bytes"])
	assert.Equal(t, "image/png", ref["mime_type"])
}

func TestGenerateFromImage_EmptyReference(t *testing.T) {
	srv, captured := newUpstream(t, http.StatusOK, inlineImageResponse)
	client := newTestClient(t, srv.URL)

	_, err := client.GenerateFromImage(context.Background(), "prompt", ReferenceImage{})
	assert.ErrorContains(t, err, "reference image is empty")
	assert.Empty(t, captured.Path)
}

func TestGenerateImage_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, func(c *Config) { c.Timeout = 50 * time.Millisecond })
	_, err := client.GenerateImage(context.Background(), "prompt")
	assert.ErrorContains(t, err, "http request failed")
}
