package config

type IndexConfig struct {
	Path      string
	BlockSize int
	CacheSize int
}

func NewIndexConfig() *IndexConfig {
	return &IndexConfig{
		Path:      "index.bpt",
		BlockSize: 4096,
		CacheSize: 64,
	}
}
