// Package embedding reranks index snippets by semantic similarity using a
// pluggable embedding provider.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"time"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rerank orders texts by similarity to query, most similar first. Texts that
// fail to embed keep their relative order after the embedded ones. When the
// query itself cannot be embedded the input is returned unchanged with the
// error.
func Rerank(ctx context.Context, e Embedder, query string, texts []string) ([]string, error) {
	if e == nil || len(texts) < 2 {
		return texts, nil
	}
	q, err := e.Embed(ctx, query)
	if err != nil {
		return texts, fmt.Errorf("embed query: %w", err)
	}

	type scored struct {
		text  string
		score float64
	}
	ranked := make([]scored, len(texts))
	for i, t := range texts {
		ranked[i] = scored{text: t, score: -2}
		if v, err := e.Embed(ctx, t); err == nil {
			ranked[i].score = CosineSimilarity(q, v)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.text
	}
	return out, nil
}

// Options selects and configures a provider.
type Options struct {
	Provider string // "ollama", "openai" or "" (disabled)
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// New returns the configured embedder, or nil when embeddings are disabled.
func New(o Options) (Embedder, error) {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: o.Timeout}

	switch o.Provider {
	case "":
		return nil, nil
	case "ollama":
		if o.BaseURL == "" {
			o.BaseURL = "http://localhost:11434"
		}
		if o.Model == "" {
			o.Model = "nomic-embed-text"
		}
		return &ollamaEmbedder{baseURL: o.BaseURL, model: o.Model, client: client}, nil
	case "openai":
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		return &openAIEmbedder{baseURL: o.BaseURL, apiKey: o.APIKey, model: o.Model, client: client}, nil
	default:
		return nil, fmt.Errorf("unknown embed provider %q", o.Provider)
	}
}

// --- Ollama ---

type ollamaEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
}

func (e *ollamaEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	req := map[string]string{"model": e.model, "prompt": text}
	if err := postJSON(ctx, e.client, e.baseURL+"/api/embeddings", "", req, &result); err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return result.Embedding, nil
}

// --- OpenAI-compatible ---

type openAIEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	req := map[string]string{"model": e.model, "input": text}
	if err := postJSON(ctx, e.client, e.baseURL+"/embeddings", e.apiKey, req, &result); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("openai: no embedding returned")
	}
	return result.Data[0].Embedding, nil
}

func postJSON(ctx context.Context, client *http.Client, url, bearer string, in, out interface{}) error {
	body, _ := json.Marshal(in)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
