// Package embeddings turns memory text into vectors for storage and search.
//
// Two HTTP providers are available: "openai" speaks the OpenAI-compatible
// /embeddings API (api.openai.com, vLLM, Ollama, LocalAI) and "tei" speaks
// the Hugging Face Text Embeddings Inference /embed API. The Purpose hint
// distinguishes write-side from query-side embedding calls.
package embeddings
