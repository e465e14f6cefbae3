package llm

import (
	"context"
	"hash/fnv"
	"sync"
)

// ScriptedClient is the in-process "stub" provider used in tests and
// offline development. Responses are played back in FIFO order; when the
// script is exhausted the Default response is returned. Embeddings are
// deterministic hashes so retrieval tests are reproducible.
type ScriptedClient struct {
	mu        sync.Mutex
	model     string
	script    []string
	calls     []Request
	Default   string
	EmbedDims int
}

// NewScriptedClient creates a stub client with no script. Every call
// returns the Default response until Enqueue is used.
func NewScriptedClient(model string) *ScriptedClient {
	if model == "" {
		model = "scripted"
	}
	return &ScriptedClient{
		model:     model,
		Default:   "stub response",
		EmbedDims: 8,
	}
}

// Enqueue appends responses to the playback script.
func (c *ScriptedClient) Enqueue(responses ...string) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, responses...)
	return c
}

// Calls returns a copy of the requests seen so far.
func (c *ScriptedClient) Calls() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns the number of Complete invocations.
func (c *ScriptedClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *ScriptedClient) Model() string { return c.model }

func (c *ScriptedClient) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)

	if len(c.script) == 0 {
		return c.Default, nil
	}
	next := c.script[0]
	c.script = c.script[1:]
	return next, nil
}

// Embed returns a deterministic pseudo-embedding per input text.
func (c *ScriptedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, c.EmbedDims)
		h := fnv.New32a()
		for j := range vec {
			h.Write([]byte(text))
			h.Write([]byte{byte(j)})
			// Map the hash into [-1, 1) so cosine similarity behaves.
			vec[j] = float32(int32(h.Sum32())) / float32(1<<31)
		}
		vectors[i] = vec
	}
	return vectors, nil
}
