package config

// Default tunables. The similarity threshold default was revised down from
// 0.7 after observing scores produced by the MiniLM embedding model; it must
// be re-tuned if the embedding model changes.
const (
	DefaultChunkSize           = 800
	DefaultChunkOverlap        = 200
	DefaultSeparator           = "\n\n"
	DefaultTopK                = 5
	DefaultSimilarityThreshold = 0.3
	DefaultMaxContextUnits     = 8000
	DefaultGenMaxTokens        = 2000
	DefaultGenTemperature      = 0.3
	DefaultGenModel            = "claude-3-5-sonnet-latest"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/kotae.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/kotae/data/indices/vectors.bin"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/kotae/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = DefaultChunkSize
	}
	if cfg.Retrieval.ChunkOverlap == 0 {
		cfg.Retrieval.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.Retrieval.Separator == "" {
		cfg.Retrieval.Separator = DefaultSeparator
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = DefaultTopK
	}
	if cfg.Retrieval.SimilarityThreshold == 0 {
		cfg.Retrieval.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = DefaultGenModel
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = DefaultGenMaxTokens
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = DefaultGenTemperature
	}
	if cfg.Generation.MaxContextUnits == 0 {
		cfg.Generation.MaxContextUnits = DefaultMaxContextUnits
	}
	if cfg.Generation.TimeoutSeconds == 0 {
		cfg.Generation.TimeoutSeconds = 120
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx"}
	}
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
