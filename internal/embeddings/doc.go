// Package embeddings provides embedding generation via multiple providers.
//
// Supports FastEmbed (local ONNX, needs CGO) and TEI (external
// text-embeddings-inference service). Every provider returns L2-normalized
// vectors so that inner product equals cosine similarity downstream.
package embeddings
