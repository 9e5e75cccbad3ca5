package domain

// KeyPrefix namespaces every key this service writes to a shared key-value store.
const KeyPrefix = "mailrag:"

// VectorConfig holds vectorization defaults used when the config leaves them empty.
// The dimension is not defaulted: the provider learns it from the warm-up probe.
type VectorConfig struct {
	Model         string
	MaxInputChars int
}

// DefaultVectorConfig returns defaults tuned for text-embedding-3-small.
// The model accepts 8191 tokens; 24000 characters keeps typical email text well under it.
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Model:         "text-embedding-3-small",
		MaxInputChars: 24000,
	}
}
