package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kStrings
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "BIZRAG_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "BIZRAG_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "data.dir", typ: kString, env: "BIZRAG_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Data.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Data.Dir },
	},
	{
		key: "index.dir", typ: kString, env: "BIZRAG_INDEX_DIR",
		apply:   func(cfg *Config, v any) { cfg.Index.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Index.Dir },
	},
	{
		key: "database.url", typ: kString, env: "BIZRAG_DATABASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Database.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Database.URL },
	},
	{
		key: "ollama.base_url", typ: kString, env: "BIZRAG_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "llm.model", typ: kString, env: "BIZRAG_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.embed_model", typ: kString, env: "BIZRAG_LLM_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.EmbedModel },
	},
	{
		key: "llm.temperature", typ: kFloat, env: "BIZRAG_LLM_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.LLM.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.LLM.Temperature },
	},
	{
		key: "llm.top_p", typ: kFloat, env: "BIZRAG_LLM_TOP_P",
		apply:   func(cfg *Config, v any) { cfg.LLM.TopP = v.(float64) },
		extract: func(cfg Config) any { return cfg.LLM.TopP },
	},
	{
		key: "llm.top_k", typ: kInt, env: "BIZRAG_LLM_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.LLM.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.TopK },
	},
	{
		key: "llm.repeat_penalty", typ: kFloat, env: "BIZRAG_LLM_REPEAT_PENALTY",
		apply:   func(cfg *Config, v any) { cfg.LLM.RepeatPenalty = v.(float64) },
		extract: func(cfg Config) any { return cfg.LLM.RepeatPenalty },
	},
	{
		key: "llm.stop_sequences", typ: kStrings, env: "BIZRAG_LLM_STOP_SEQUENCES",
		apply:   func(cfg *Config, v any) { cfg.LLM.StopSequences = v.([]string) },
		extract: func(cfg Config) any { return cfg.LLM.StopSequences },
	},
	{
		key: "llm.timeout", typ: kString, env: "BIZRAG_LLM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.LLM.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Timeout },
	},
	{
		key: "llm.max_retries", typ: kInt, env: "BIZRAG_LLM_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.LLM.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MaxRetries },
	},
	{
		key: "rag.chunk_size", typ: kInt, env: "BIZRAG_RAG_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.RAG.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.RAG.ChunkSize },
	},
	{
		key: "rag.chunk_overlap", typ: kInt, env: "BIZRAG_RAG_CHUNK_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.RAG.ChunkOverlap = v.(int) },
		extract: func(cfg Config) any { return cfg.RAG.ChunkOverlap },
	},
	{
		key: "rag.top_k", typ: kInt, env: "BIZRAG_RAG_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.RAG.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.RAG.TopK },
	},
	{
		key: "rag.max_context_tokens", typ: kInt, env: "BIZRAG_RAG_MAX_CONTEXT_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.RAG.MaxContextTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.RAG.MaxContextTokens },
	},
	{
		key: "rag.document_mode", typ: kString, env: "BIZRAG_RAG_DOCUMENT_MODE",
		apply:   func(cfg *Config, v any) { cfg.RAG.DocumentMode = v.(string) },
		extract: func(cfg Config) any { return cfg.RAG.DocumentMode },
	},
	{
		key: "prompts.general", typ: kString,
		apply:   func(cfg *Config, v any) { cfg.Prompts.General = v.(string) },
		extract: func(cfg Config) any { return cfg.Prompts.General },
	},
	{
		key: "prompts.financial", typ: kString,
		apply:   func(cfg *Config, v any) { cfg.Prompts.Financial = v.(string) },
		extract: func(cfg Config) any { return cfg.Prompts.Financial },
	},
	{
		key: "prompts.employee", typ: kString,
		apply:   func(cfg *Config, v any) { cfg.Prompts.Employee = v.(string) },
		extract: func(cfg Config) any { return cfg.Prompts.Employee },
	},
	{
		key: "prompts.department", typ: kString,
		apply:   func(cfg *Config, v any) { cfg.Prompts.Department = v.(string) },
		extract: func(cfg Config) any { return cfg.Prompts.Department },
	},
	{
		key: "log.level", typ: kString, env: "BIZRAG_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.file", typ: kString, env: "BIZRAG_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kStrings:
			v, ok, err := b.GetStrings(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kStrings:
			s.apply(cfg, splitList(raw))
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// splitList parses a "|"-separated list. Escaped newlines ("\n") are
// expanded so stop sequences like "\nHuman:" survive a shell export.
func splitList(raw string) []string {
	parts := strings.Split(raw, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ReplaceAll(p, `\n`, "\n")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
