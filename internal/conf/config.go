package conf

import (
	"gopkg.in/yaml.v2"
	"os"
	"path/filepath"

	"courier/internal/blobstorage"
)

type Config struct {
	ListenAddr      string             `yaml:"listen_addr"`
	DataDir         string             `yaml:"data_dir"`
	TokenSecret     string             `yaml:"token_secret"`
	TokenTTLSeconds int                `yaml:"token_ttl_seconds"`
	BlobStorage     blobstorage.Config `yaml:"blob_storage"`
}

func LoadConfig() (*Config, error) {
	// Try multiple possible paths
	configPaths := []string{
		"/etc/courier/courier.yaml",
		"./config/courier.yaml",
		"./courier.yaml",
		"config/courier.yaml",
	}

	var data []byte
	var err error
	for _, path := range configPaths {
		data, err = os.ReadFile(filepath.Clean(path))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	return parse(data)
}

// LoadConfigFile reads one specific configuration file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
