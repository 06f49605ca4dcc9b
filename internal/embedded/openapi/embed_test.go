package openapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecJSON(t *testing.T) {
	data, err := SpecJSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "3.1.0", doc["openapi"])

	again, err := SpecJSON()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestSpecYAMLEmbedded(t *testing.T) {
	assert.NotEmpty(t, SpecYAML)
}
