package embeddings

import "strings"

// DefaultModel is the sentence encoder the knowledge base is indexed with.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// knownDimensions lists output sizes for the models FastEmbed ships, under
// both their hub names and FastEmbed's own names.
var knownDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"fast-bge-small-en-v1.5":                 384,
	"fast-bge-small-en":                      384,
	"fast-bge-base-en-v1.5":                  768,
	"fast-bge-base-en":                       768,
	"fast-bge-small-zh-v1.5":                 512,
	"fast-all-MiniLM-L6-v2":                  384,
}

// ModelDimension returns the embedding dimension of a known model.
func ModelDimension(model string) (int, bool) {
	dim, ok := knownDimensions[model]
	return dim, ok
}

// detectDimensionFromModel guesses the dimension for models outside the table.
// Falls back to 384.
func detectDimensionFromModel(model string) int {
	if dim, ok := ModelDimension(model); ok {
		return dim
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "large"):
		return 1024
	case strings.Contains(lower, "base"), strings.Contains(lower, "mpnet"):
		return 768
	default:
		return 384
	}
}
