package gemini

import (
	"context"
	"testing"

	"genai-image-web/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestFilterImageModels(t *testing.T) {
	models := []*genai.Model{
		{Name: "models/gemini-2.5-flash", DisplayName: "Gemini 2.5 Flash"},
		{Name: "models/gemini-2.5-flash-image", DisplayName: "Nano Banana", SupportedActions: []string{"generateContent"}},
		nil,
		{Name: "models/imagen-3.0-generate-001", Description: "Imagen 3"},
		{Name: "models/text-embedding-004"},
	}

	got := filterImageModels(models)
	require.Len(t, got, 2)
	assert.Equal(t, "models/gemini-2.5-flash-image", got[0].Name)
	assert.Equal(t, "Nano Banana", got[0].DisplayName)
	assert.Equal(t, []string{"generateContent"}, got[0].SupportedActions)
	assert.Equal(t, "models/imagen-3.0-generate-001", got[1].Name)
	assert.Equal(t, "Imagen 3", got[1].Description)
}

func TestModelCatalog_WithoutAPIKey(t *testing.T) {
	catalog, err := NewModelCatalog(context.Background(), &common.Config{})
	require.NoError(t, err)

	_, err = catalog.ListImageModels(context.Background())
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
