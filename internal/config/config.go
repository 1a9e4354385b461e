package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SourceConfig identifies the web document to ingest.
type SourceConfig struct {
	URL      string `yaml:"url"`
	Selector string `yaml:"selector"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// OpenAIChatConfig holds configuration for the OpenAI-compatible chat model.
type OpenAIChatConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OllamaChatConfig holds configuration for a local Ollama chat model.
type OllamaChatConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// ChatConfig selects and configures the chat model provider.
type ChatConfig struct {
	Type   string            `yaml:"type"`
	OpenAI *OpenAIChatConfig `yaml:"openai,omitempty"`
	Ollama *OllamaChatConfig `yaml:"ollama,omitempty"`
}

// WorkflowConfig configures the orchestration graph.
type WorkflowConfig struct {
	Type string `yaml:"type"`
	TopK int    `yaml:"top_k"`
	// SectionFilter restricts analyzed-workflow retrieval to the section the
	// query analysis chose. Opt-in behaviour.
	SectionFilter  bool `yaml:"section_filter"`
	CustomTemplate bool `yaml:"custom_template"`
}

// SummaryConfig configures the post-ingest corpus summary.
type SummaryConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Source      SourceConfig      `yaml:"source"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Chat        ChatConfig        `yaml:"chat"`
	Workflow    WorkflowConfig    `yaml:"workflow"`
	Summary     SummaryConfig     `yaml:"summary"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/webrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/webrag/config.yaml and
// returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "webrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Source: SourceConfig{
			URL:      "https://lilianweng.github.io/posts/2023-06-23-agent/",
			Selector: ".post-title, .post-header, .post-content",
		},
		Chunker:     ChunkerConfig{ChunkSize: 1000, Overlap: 200},
		Embedder:    EmbedderConfig{Type: "openai"},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Chat:        ChatConfig{Type: "openai"},
		Workflow:    WorkflowConfig{Type: "plain", TopK: 2, SectionFilter: true},
		Summary:     SummaryConfig{MaxSentences: 3},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 200
	}
	if cfg.Workflow.Type == "" {
		cfg.Workflow.Type = "plain"
	}
	if cfg.Workflow.TopK == 0 {
		cfg.Workflow.TopK = 2
	}
	if cfg.Summary.MaxSentences == 0 {
		cfg.Summary.MaxSentences = 3
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.Chat.Type == "" {
		cfg.Chat.Type = "openai"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.Chat.Type == "openai" {
		if cfg.Chat.OpenAI == nil {
			cfg.Chat.OpenAI = &OpenAIChatConfig{}
		}
		if cfg.Chat.OpenAI.BaseURL == "" {
			cfg.Chat.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Chat.OpenAI.APIKeyEnv == "" {
			cfg.Chat.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Chat.OpenAI.Model == "" {
			cfg.Chat.OpenAI.Model = "gpt-4o-mini"
		}
		if cfg.Chat.OpenAI.TimeoutSecs == 0 {
			cfg.Chat.OpenAI.TimeoutSecs = 120
		}
	}
	if cfg.Chat.Type == "ollama" && cfg.Chat.Ollama == nil {
		cfg.Chat.Ollama = &OllamaChatConfig{BaseURL: "http://localhost:11434", Model: "llama3.1"}
	}
}
