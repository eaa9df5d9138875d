package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Extract  ExtractConfig  `yaml:"extract"`
	Chunker  ChunkerConfig  `yaml:"chunker"`
	EmbedLLM LLMConfig      `yaml:"embedding"`
	RAG      RAGConfig      `yaml:"rag"`
	LLMs     BackendsConfig `yaml:"llms"`
	Tokens   TokensConfig   `yaml:"tokens"`
}

type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	UploadDir    string `yaml:"upload_dir"`
	MaxDocuments int    `yaml:"max_documents"`
}

type ExtractConfig struct {
	// OCRDisabled turns off the scanned-page fallback; extraction then
	// reports empty pages as warnings only.
	OCRDisabled    bool `yaml:"ocr_disabled"`
	OCRDPI         int  `yaml:"ocr_dpi"`
	OCRTimeoutSecs int  `yaml:"ocr_timeout_seconds"`
}

type ChunkerConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	Separator    string `yaml:"separator"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type RAGConfig struct {
	TopK int `yaml:"top_k"`
}

type BackendsConfig struct {
	Phi     LLMConfig `yaml:"phi"`
	Llama31 LLMConfig `yaml:"llama31"`
	Mixtral LLMConfig `yaml:"mixtral"`
}

type TokensConfig struct {
	Encoding     string `yaml:"encoding"`
	PromptBudget int    `yaml:"prompt_budget"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a runnable config without a file on disk.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = "uploaded_pdfs"
	}
	if c.Server.MaxDocuments == 0 {
		c.Server.MaxDocuments = 32
	}
	if c.Extract.OCRDPI == 0 {
		c.Extract.OCRDPI = 300
	}
	if c.Extract.OCRTimeoutSecs == 0 {
		c.Extract.OCRTimeoutSecs = 120
	}
	if c.Chunker.ChunkSize == 0 {
		c.Chunker.ChunkSize = 1000
	}
	if c.Chunker.ChunkOverlap == 0 {
		c.Chunker.ChunkOverlap = 200
	}
	if c.Chunker.Separator == "" {
		c.Chunker.Separator = "\n"
	}
	if c.EmbedLLM.Provider == "" {
		c.EmbedLLM.Provider = "ollama"
	}
	if c.EmbedLLM.BaseURL == "" {
		c.EmbedLLM.BaseURL = "http://localhost:11434"
	}
	if c.EmbedLLM.Model == "" {
		c.EmbedLLM.Model = "nomic-embed-text"
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = 4
	}
	applyLLMDefaults(&c.LLMs.Phi, "microsoft/Phi-3.5-mini-instruct", 128)
	applyLLMDefaults(&c.LLMs.Llama31, "meta-llama/Meta-Llama-3.1-8B-Instruct", 250)
	applyLLMDefaults(&c.LLMs.Mixtral, "mistralai/Mixtral-8x7B-Instruct-v0.1", 128)
	if c.Tokens.Encoding == "" {
		c.Tokens.Encoding = "cl100k_base"
	}
	if c.Tokens.PromptBudget == 0 {
		c.Tokens.PromptBudget = 4096
	}
}

func applyLLMDefaults(lc *LLMConfig, model string, maxTokens int) {
	if lc.Provider == "" {
		lc.Provider = "huggingface"
	}
	if lc.Model == "" {
		lc.Model = model
	}
	if lc.Temperature == 0 {
		lc.Temperature = 0.01
	}
	if lc.MaxTokens == 0 {
		lc.MaxTokens = maxTokens
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	// conventional Hugging Face Hub token variable
	if token := os.Getenv("HUGGINGFACEHUB_API_TOKEN"); token != "" {
		for _, lc := range []*LLMConfig{&c.LLMs.Phi, &c.LLMs.Llama31, &c.LLMs.Mixtral} {
			if lc.Provider == "huggingface" && lc.Key == "" {
				lc.Key = token
			}
		}
	}
	if key := os.Getenv("EMBEDDING_API_KEY"); key != "" && c.EmbedLLM.Key == "" {
		c.EmbedLLM.Key = key
	}
}

func (c *Config) validate() error {
	if c.Chunker.ChunkSize <= 0 {
		return fmt.Errorf("chunker: chunk_size must be positive, got %d", c.Chunker.ChunkSize)
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("chunker: chunk_overlap must be in [0, chunk_size), got %d", c.Chunker.ChunkOverlap)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag: top_k must be positive, got %d", c.RAG.TopK)
	}
	if c.Extract.OCRDPI < 300 {
		return fmt.Errorf("extract: ocr_dpi must be at least 300, got %d", c.Extract.OCRDPI)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
