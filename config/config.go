package config

type AppConfig struct {
	IndexConfig *IndexConfig
}

func New() *AppConfig {
	return &AppConfig{
		IndexConfig: NewIndexConfig(),
	}
}
