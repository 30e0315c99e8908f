package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	data     []byte
	mimeType string
	err      error
	calls    []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	f.calls = append(f.calls, rawURL)
	return f.data, f.mimeType, f.err
}

func decodeResponse(t *testing.T, raw string) *generateResponse {
	t.Helper()
	var resp generateResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	return &resp
}

func TestExtractImage_Shapes(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		wantData string
		wantMime string
	}{
		{
			name:     "candidates inlineData",
			body:     `{"candidates":[{"content":{"parts":[{"text":"here you go"},{"inlineData":{"mimeType":"image/jpeg","data":"QUJD"}}]}}]}`,
			wantData: "QUJD",
			wantMime: "image/jpeg",
		},
		{
			name:     "inlineData without mime defaults to png",
			body:     `{"candidates":[{"content":{"parts":[{"inlineData":{"data":"QUJD"}}]}}]}`,
			wantData: "QUJD",
			wantMime: "image/png",
		},
		{
			name:     "image in second candidate",
			body:     `{"candidates":[{"content":{"parts":[{"text":"no"}]}},{"content":{"parts":[{"inlineData":{"mimeType":"image/webp","data":"WFla"}}]}}]}`,
			wantData: "WFla",
			wantMime: "image/webp",
		},
		{
			name:     "generatedImages imageBase64",
			body:     `{"generatedImages":[{"imageBase64":"SU1H"}]}`,
			wantData: "SU1H",
			wantMime: "image/png",
		},
		{
			name:     "generatedImages image.imageBytes",
			body:     `{"generatedImages":[{"image":{"imageBytes":"Qnl0ZXM=","mimeType":"image/jpeg"}}]}`,
			wantData: "Qnl0ZXM=",
			wantMime: "image/jpeg",
		},
		{
			name:     "predictions bytesBase64Encoded",
			body:     `{"predictions":[{"bytesBase64Encoded":"UFJFRA==","mimeType":"image/png"}]}`,
			wantData: "UFJFRA==",
			wantMime: "image/png",
		},
		{
			name:     "generatedImages wins over candidates",
			body:     `{"generatedImages":[{"imageBase64":"Rmlyc3Q="}],"candidates":[{"content":{"parts":[{"inlineData":{"data":"U2Vjb25k"}}]}}]}`,
			wantData: "Rmlyc3Q=",
			wantMime: "image/png",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			img, err := extractImage(context.Background(), decodeResponse(t, tc.body), nil)
			require.NoError(t, err)
			assert.Equal(t, tc.wantData, img.Base64)
			assert.Equal(t, tc.wantMime, img.MimeType)
		})
	}
}

func TestExtractImage_InlineDataRoundTrip(t *testing.T) {
	// 非规范 base64（末尾填充位非零）也必须原样返回
	raw := "iVBORw0KGgp="
	body := `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/x-custom","data":"` + raw + `"}}]}}]}`

	img, err := extractImage(context.Background(), decodeResponse(t, body), nil)
	require.NoError(t, err)
	assert.Equal(t, raw, img.Base64)
	assert.Equal(t, "image/x-custom", img.MimeType)
}

func TestExtractImage_ImageURL(t *testing.T) {
	body := `{"generatedImages":[{"imageUrl":"https://cdn.example.com/out.jpg"}]}`

	t.Run("fetches and encodes", func(t *testing.T) {
		fetcher := &fakeFetcher{data: []byte("jpeg-bytes"), mimeType: "image/jpeg"}
		img, err := extractImage(context.Background(), decodeResponse(t, body), fetcher)
		require.NoError(t, err)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")), img.Base64)
		assert.Equal(t, "image/jpeg", img.MimeType)
		assert.Equal(t, []string{"https://cdn.example.com/out.jpg"}, fetcher.calls)
	})

	t.Run("fetch failure", func(t *testing.T) {
		fetcher := &fakeFetcher{err: errors.New("connection refused")}
		_, err := extractImage(context.Background(), decodeResponse(t, body), fetcher)

		var fetchErr *FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, "https://cdn.example.com/out.jpg", fetchErr.URL)
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("no fetcher configured", func(t *testing.T) {
		_, err := extractImage(context.Background(), decodeResponse(t, body), nil)
		var fetchErr *FetchError
		assert.ErrorAs(t, err, &fetchErr)
	})
}

func TestExtractImage_NoImage(t *testing.T) {
	t.Run("text only response", func(t *testing.T) {
		body := `{"candidates":[{"content":{"parts":[{"text":"I cannot draw that."}]},"finishReason":"STOP"}]}`
		_, err := extractImage(context.Background(), decodeResponse(t, body), nil)

		var noImage *NoImageError
		require.ErrorAs(t, err, &noImage)
		assert.Equal(t, "I cannot draw that.", noImage.Details)
		assert.Empty(t, noImage.FinishReason)
	})

	t.Run("safety finish reason", func(t *testing.T) {
		body := `{"candidates":[{"finishReason":"IMAGE_SAFETY"}]}`
		_, err := extractImage(context.Background(), decodeResponse(t, body), nil)

		var noImage *NoImageError
		require.ErrorAs(t, err, &noImage)
		assert.Equal(t, "IMAGE_SAFETY", noImage.FinishReason)
		assert.Equal(t, defaultNoImageDetails, noImage.Details)
	})

	t.Run("finish message used when no text", func(t *testing.T) {
		body := `{"candidates":[{"finishReason":"IMAGE_PROHIBITED_CONTENT","finishMessage":"Unable to show the generated image."}]}`
		_, err := extractImage(context.Background(), decodeResponse(t, body), nil)

		var noImage *NoImageError
		require.ErrorAs(t, err, &noImage)
		assert.Equal(t, "IMAGE_PROHIBITED_CONTENT", noImage.FinishReason)
		assert.Equal(t, "Unable to show the generated image.", noImage.Details)
	})

	t.Run("text preferred over finish message", func(t *testing.T) {
		body := `{"candidates":[{"content":{"parts":[{"text":"Here is why."}]},"finishMessage":"stopped"}]}`
		_, err := extractImage(context.Background(), decodeResponse(t, body), nil)

		var noImage *NoImageError
		require.ErrorAs(t, err, &noImage)
		assert.Equal(t, "Here is why.", noImage.Details)
	})

	t.Run("blocked prompt", func(t *testing.T) {
		body := `{"promptFeedback":{"blockReason":"SAFETY"}}`
		_, err := extractImage(context.Background(), decodeResponse(t, body), nil)

		var noImage *NoImageError
		require.ErrorAs(t, err, &noImage)
		assert.Equal(t, "SAFETY", noImage.FinishReason)
	})

	t.Run("empty object", func(t *testing.T) {
		_, err := extractImage(context.Background(), decodeResponse(t, `{}`), nil)
		var noImage *NoImageError
		assert.ErrorAs(t, err, &noImage)
	})
}
