// Package embeddings maps text to embedding vectors.
//
// A Provider is created once by NewProvider and injected into the vector
// store, which reuses it for every call. Four backends are supported:
//
//   - ollama: a local Ollama server (default model llama3.2:latest)
//   - openai: any OpenAI-compatible /embeddings endpoint
//   - tei: HuggingFace Text Embeddings Inference over HTTP
//   - fastembed: in-process ONNX models (requires cgo)
//
// NewRetrying wraps a Provider with rate limiting and exponential backoff.
// Providers themselves never retry.
package embeddings
