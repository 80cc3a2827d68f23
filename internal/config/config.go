package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server   ServerConfig
	Data     DataConfig
	Index    IndexConfig
	Database DatabaseConfig
	Ollama   OllamaConfig
	LLM      LLMConfig
	RAG      RAGConfig
	Prompts  PromptConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
	// APIToken enables bearer auth on the API when non-empty.
	APIToken string
}

type DataConfig struct {
	Dir string
}

type IndexConfig struct {
	Dir string
}

type DatabaseConfig struct {
	URL string
}

type OllamaConfig struct {
	BaseURL string
}

type LLMConfig struct {
	Model         string
	EmbedModel    string
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
	StopSequences []string
	Timeout       string
	MaxRetries    int
}

type RAGConfig struct {
	ChunkSize        int
	ChunkOverlap     int
	TopK             int
	MaxContextTokens int
	DocumentMode     string
}

// PromptConfig holds one template per query type. Each template must contain
// the {context} and {question} slots.
type PromptConfig struct {
	General    string
	Financial  string
	Employee   string
	Department string
}

type LogConfig struct {
	Level string
	File  string
}

const (
	defaultGeneralPrompt = "You are an AI assistant focused on providing accurate information about company data. " +
		"The company data includes:\n" +
		"- Employee information (names, positions, salaries, departments)\n" +
		"- Department details (budgets, locations, leadership)\n" +
		"- Financial data (revenue, expenses, profits by quarter)\n\n" +
		"Instructions:\n" +
		"1. Use ONLY the information from the provided context.\n" +
		"2. Be direct and specific in your responses.\n" +
		"3. Include precise numbers when available.\n" +
		"4. If information is not in the context, say so clearly.\n" +
		"5. Format lists and data clearly.\n\n" +
		"Context: {context}\n" +
		"Question: {question}\n\nAnswer:"

	defaultFinancialPrompt = "Review the financial data and provide specific details:\n\n" +
		"Data Guidelines:\n" +
		"- Show exact revenue, expenses, and profit figures.\n" +
		"- Include quarter and year references.\n" +
		"- Present percentage changes when relevant.\n" +
		"- Format numbers with proper currency symbols.\n\n" +
		"Context: {context}\nQuestion: {question}\nAnswer:"

	defaultEmployeePrompt = "Provide employee information with the following details:\n\n" +
		"Required Information:\n" +
		"- Full name and position.\n" +
		"- Department and location.\n" +
		"- Salary and hire date.\n" +
		"- Reporting structure (if applicable).\n\n" +
		"Context: {context}\nQuestion: {question}\nAnswer:"

	defaultDepartmentPrompt = "Present department information including:\n\n" +
		"Key Details:\n" +
		"- Department name and location.\n" +
		"- Budget allocation.\n" +
		"- Team size and structure.\n" +
		"- Key performance metrics.\n\n" +
		"Context: {context}\nQuestion: {question}\nAnswer:"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 5001,
		},
		Data: DataConfig{
			Dir: "./data",
		},
		Index: IndexConfig{
			Dir: "./index",
		},
		Database: DatabaseConfig{
			URL: "sqlite:///conversations.db",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
		},
		LLM: LLMConfig{
			Model:         "llama3.2:1b",
			EmbedModel:    "mxbai-embed-large",
			Temperature:   0.7,
			TopP:          0.9,
			TopK:          10,
			RepeatPenalty: 1.1,
			StopSequences: []string{"\nHuman:", "\nAssistant:", "Question:", "Context:", "Claude:", "If the human"},
			Timeout:       "120s",
			MaxRetries:    2,
		},
		RAG: RAGConfig{
			ChunkSize:        500,
			ChunkOverlap:     50,
			TopK:             5,
			MaxContextTokens: 3000,
			DocumentMode:     "employee",
		},
		Prompts: PromptConfig{
			General:    defaultGeneralPrompt,
			Financial:  defaultFinancialPrompt,
			Employee:   defaultEmployeePrompt,
			Department: defaultDepartmentPrompt,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the YAML config file and environment
// variables.
//
// The config file is $BIZRAG_CONFIG if set, otherwise
// $XDG_CONFIG_HOME/bizrag/config.yaml. Environment variables (BIZRAG_*)
// override file values.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("invalid config: rag.top_k must be positive, got %d", c.RAG.TopK)
	}
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("invalid config: rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("invalid config: rag.chunk_overlap must be in [0, chunk_size), got %d", c.RAG.ChunkOverlap)
	}
	switch c.RAG.DocumentMode {
	case "employee", "department", "all":
	default:
		return fmt.Errorf("invalid config: rag.document_mode must be employee, department or all, got %q", c.RAG.DocumentMode)
	}
	if _, err := time.ParseDuration(c.LLM.Timeout); err != nil {
		return fmt.Errorf("invalid config: llm.timeout: %w", err)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("invalid config: llm.max_retries must not be negative, got %d", c.LLM.MaxRetries)
	}
	return nil
}

// LLMTimeout returns the parsed per-attempt generation timeout.
func (c Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}
