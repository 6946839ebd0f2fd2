package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DENGUEX_"

const maxConfigFileSize = 1 << 20

// Load builds the configuration from, lowest precedence first: Default(),
// the YAML file at configPath, and DENGUEX_* environment variables.
//
// A .env file in the working directory is loaded into the environment
// first without overwriting variables that are already set. An empty
// configPath means ~/.config/denguex/config.yaml, which may be absent.
//
// Environment names drop the prefix and split once, after the section:
//
//	DENGUEX_SERVER_HTTP_PORT            -> server.http_port
//	DENGUEX_ENGINE_SIMILARITY_THRESHOLD -> engine.similarity_threshold
//	DENGUEX_VECTORSTORE_QDRANT_HOST     -> vectorstore.qdrant_host
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	optional := configPath == ""
	if optional {
		if home, err := os.UserHomeDir(); err == nil {
			configPath = filepath.Join(home, ".config", "denguex", "config.yaml")
		}
	}

	k := koanf.New(".")
	if configPath != "" {
		raw, err := readConfigFile(configPath)
		if err != nil && !(optional && errors.Is(err, fs.ErrNotExist)) {
			return nil, err
		}
		if raw != nil {
			if err := k.Load(rawbytes.Provider(raw), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
			}
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	fillZeroes(cfg, Default())
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps DENGUEX_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + field
}

// readConfigFile checks the file through the descriptor it then reads, so
// the checked file is the one loaded.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := checkConfigFile(info); err != nil {
		return nil, fmt.Errorf("refusing config file %s: %w", path, err)
	}

	raw, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(raw) > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large (max %d bytes)", maxConfigFileSize)
	}
	return raw, nil
}

func checkConfigFile(info os.FileInfo) error {
	if info.IsDir() {
		return errors.New("is a directory")
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	if perm := info.Mode().Perm(); runtime.GOOS != "windows" && perm&0o022 != 0 {
		return fmt.Errorf("insecure config file permissions %v: group or world writable", perm)
	}
	return nil
}

// fillZeroes restores defaults for settings that a file or variable set to
// a zero value that has no meaning.
func fillZeroes(cfg, def *Config) {
	str := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	num := func(v *int, d int) {
		if *v == 0 {
			*v = d
		}
	}
	num(&cfg.Server.Port, def.Server.Port)
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	str(&cfg.Logging.Level, def.Logging.Level)
	str(&cfg.Logging.Format, def.Logging.Format)
	str(&cfg.Telemetry.ServiceName, def.Telemetry.ServiceName)
	str(&cfg.Telemetry.Protocol, def.Telemetry.Protocol)
	str(&cfg.Embeddings.Provider, def.Embeddings.Provider)
	str(&cfg.Embeddings.Model, def.Embeddings.Model)
	num(&cfg.Embeddings.BatchSize, def.Embeddings.BatchSize)
	str(&cfg.VectorStore.Provider, def.VectorStore.Provider)
	str(&cfg.VectorStore.Collection, def.VectorStore.Collection)
	str(&cfg.VectorStore.QdrantHost, def.VectorStore.QdrantHost)
	num(&cfg.VectorStore.QdrantPort, def.VectorStore.QdrantPort)
	num(&cfg.Engine.TopK, def.Engine.TopK)
}
