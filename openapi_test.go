package companion

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOpenAPI(t *testing.T) {
	doc, err := LoadOpenAPI(context.Background())
	require.NoError(t, err)

	for _, p := range []string{"/api/health", "/api/files", "/api/files/{path}"} {
		require.NotNil(t, doc.Paths.Find(p), "missing path %s", p)
	}
	item := doc.Paths.Find("/api/files/{path}")
	require.NotNil(t, item.Get)
	require.NotNil(t, item.Post)
	require.NotNil(t, item.Put)
	require.NotNil(t, item.Delete)
}

func TestOpenAPIJSON(t *testing.T) {
	b, err := OpenAPIJSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	require.Equal(t, "3.0.3", doc["openapi"])
}
