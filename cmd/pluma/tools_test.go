package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/harunnryd/pluma/pkg/llm"
)

func sampleDecls() []llm.ToolDeclaration {
	return []llm.ToolDeclaration{{
		Name:        "get_greeting",
		Description: "Greet the user.",
		Parameters: llm.Object(map[string]llm.Property{
			"name": llm.String("The user's name."),
		}),
	}}
}

func TestWriteDeclarationsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeDeclarations(&buf, sampleDecls(), "json"))

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "get_greeting", out[0]["name"])
	params := out[0]["parameters"].(map[string]any)
	assert.Equal(t, "object", params["type"])
}

func TestWriteDeclarationsYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeDeclarations(&buf, sampleDecls(), "yaml"))

	var out []llm.ToolDeclaration
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, sampleDecls()[0].Name, out[0].Name)
	assert.Equal(t, "string", out[0].Parameters.Properties["name"].Type)
}

func TestWriteDeclarationsUnknownFormat(t *testing.T) {
	assert.Error(t, writeDeclarations(&bytes.Buffer{}, sampleDecls(), "toml"))
}
