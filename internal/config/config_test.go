package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8765, cfg.Server.Port)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, float32(0.6), cfg.Memory.SimilarityThreshold)
	assert.Equal(t, 3, cfg.Memory.SearchLimit)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		expectError   bool
		errorContains string
	}{
		{
			name:        "defaults are valid",
			mutate:      func(*Config) {},
			expectError: false,
		},
		{
			name:          "port out of range",
			mutate:        func(c *Config) { c.Server.Port = 70000 },
			expectError:   true,
			errorContains: "server.port",
		},
		{
			name:          "unknown log level",
			mutate:        func(c *Config) { c.Logging.Level = "verbose" },
			expectError:   true,
			errorContains: "logging.level",
		},
		{
			name:          "unknown log format",
			mutate:        func(c *Config) { c.Logging.Format = "xml" },
			expectError:   true,
			errorContains: "logging.format",
		},
		{
			name:          "unknown vector store provider",
			mutate:        func(c *Config) { c.VectorStore.Provider = "milvus" },
			expectError:   true,
			errorContains: "vectorstore.provider",
		},
		{
			name:          "unknown embeddings provider",
			mutate:        func(c *Config) { c.Embeddings.Provider = "cohere" },
			expectError:   true,
			errorContains: "embeddings.provider",
		},
		{
			name:          "zero embedding dimensions",
			mutate:        func(c *Config) { c.Embeddings.Dimensions = -1 },
			expectError:   true,
			errorContains: "embeddings.dimensions",
		},
		{
			name:          "unknown llm provider",
			mutate:        func(c *Config) { c.LLM.Provider = "gemini" },
			expectError:   true,
			errorContains: "llm.provider",
		},
		{
			name:          "missing llm model",
			mutate:        func(c *Config) { c.LLM.Model = "" },
			expectError:   true,
			errorContains: "llm.model",
		},
		{
			name:          "threshold above one",
			mutate:        func(c *Config) { c.Memory.SimilarityThreshold = 1.5 },
			expectError:   true,
			errorContains: "similarity_threshold",
		},
		{
			name:          "non-positive search limit",
			mutate:        func(c *Config) { c.Memory.SearchLimit = -2 },
			expectError:   true,
			errorContains: "search_limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("super-secret-key")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "super-secret-key", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(data))

	var empty Secret
	assert.Equal(t, "", empty.String())
	assert.False(t, empty.IsSet())
}

func TestDurationUnmarshalText(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    time.Duration
		expectError bool
	}{
		{name: "seconds", input: "30s", expected: 30 * time.Second},
		{name: "compound", input: "1m30s", expected: 90 * time.Second},
		{name: "negative rejected", input: "-5s", expectError: true},
		{name: "garbage rejected", input: "soon", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.input))
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d.Duration())
		})
	}
}
