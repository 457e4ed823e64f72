package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const DefaultSecretsFile = "secrets.toml"

const apiKeyEnv = "TOGETHER_API_KEY"

// Where the API key was found, in lookup order. The nested [secrets] table is
// canonical; the top-level key is accepted for older secrets files.
const (
	KeySourceNestedFile = "secrets_file:secrets.TOGETHER_API_KEY"
	KeySourceFlatFile   = "secrets_file:TOGETHER_API_KEY"
	KeySourceEnv        = "env:TOGETHER_API_KEY"
)

type Config struct {
	Server  HTTPServerConfig `json:"server"`
	LLM     LLMConfig        `json:"llm"`
	Metrics MetricsConfig    `json:"metrics"`
	History HistoryConfig    `json:"history"`
	AMQP    AMQPConfig       `json:"amqp"`
	Log     LogConfig        `json:"log"`
}

type HTTPServerConfig struct {
	Host         string        `json:"host" default:"0.0.0.0"`
	Port         int           `json:"port" default:"8080"`
	ReadTimeout  time.Duration `json:"read_timeout" default:"30s"`
	WriteTimeout time.Duration `json:"write_timeout" default:"3m"`
}

func (c HTTPServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LLMConfig struct {
	APIKey       string        `json:"-"`
	APIKeySource string        `json:"api_key_source"`
	BaseURL      string        `json:"base_url" default:"https://api.together.xyz/v1"`
	Model        string        `json:"model" default:"meta-llama/Llama-3.3-70B-Instruct-Turbo"`
	Timeout      time.Duration `json:"timeout" default:"2m"`
}

// MarshalZerologObject logs the LLM settings without the key itself.
func (c LLMConfig) MarshalZerologObject(e *zerolog.Event) {
	e.Str("base_url", c.BaseURL).
		Str("model", c.Model).
		Dur("timeout", c.Timeout).
		Str("api_key", redact(c.APIKey)).
		Str("api_key_source", c.APIKeySource)
}

type MetricsConfig struct {
	// Addr is where /metrics is served on its own listener; "off" disables it.
	Addr string `json:"addr" default:":2112"`
}

func (c MetricsConfig) Enabled() bool {
	return c.Addr != "" && !strings.EqualFold(c.Addr, "off")
}

const (
	HistoryNone       = "none"
	HistoryMongo      = "mongo"
	HistoryFilesystem = "filesystem"
)

type HistoryConfig struct {
	Backend string      `json:"backend" default:"none"`
	Dir     string      `json:"dir" default:"./generations"`
	Mongo   MongoConfig `json:"mongo"`
}

type MongoConfig struct {
	URI      string `json:"uri" default:"mongodb://localhost:27017"`
	Database string `json:"database" default:"codegen"`
}

type AMQPConfig struct {
	// URL of the broker; empty disables event publishing.
	URL string `json:"url"`
}

type LogConfig struct {
	Level  string `json:"level" default:"info"`
	Format string `json:"format" default:"json"`
}

// Load reads settings from the environment and, when it exists, the TOML
// secrets file. A missing API key is not an error: the generator reports it on
// use so the UI can still come up.
func Load(secretsFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	secrets, err := readSecretsFile(secretsFile)
	if err != nil {
		return nil, err
	}
	if err := v.MergeConfigMap(secrets.AllSettings()); err != nil {
		return nil, fmt.Errorf("merge secrets file %s: %w", secretsFile, err)
	}

	cfg := &Config{
		Server: HTTPServerConfig{
			Host:         v.GetString("server.host"),
			Port:         v.GetInt("server.port"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
		},
		LLM: LLMConfig{
			BaseURL: v.GetString("llm.base_url"),
			Model:   v.GetString("llm.model"),
			Timeout: v.GetDuration("llm.timeout"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
		History: HistoryConfig{
			Backend: strings.ToLower(v.GetString("history.backend")),
			Dir:     v.GetString("history.dir"),
			Mongo: MongoConfig{
				URI:      v.GetString("mongo.uri"),
				Database: v.GetString("mongo.db"),
			},
		},
		AMQP: AMQPConfig{
			URL: v.GetString("amqp.url"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	cfg.LLM.APIKey, cfg.LLM.APIKeySource = lookupAPIKey(secrets)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readSecretsFile loads the TOML file into a viper instance that never consults
// the environment. A missing file yields an empty instance.
func readSecretsFile(path string) (*viper.Viper, error) {
	fv := viper.New()
	if path == "" {
		return fv, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fv, nil
		}
		return nil, fmt.Errorf("stat secrets file %s: %w", path, err)
	}
	fv.SetConfigFile(path)
	fv.SetConfigType("toml")
	if err := fv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read secrets file %s: %w", path, err)
	}
	return fv, nil
}

// lookupAPIKey checks the file keys before the environment.
func lookupAPIKey(secrets *viper.Viper) (string, string) {
	if val := strings.TrimSpace(secrets.GetString("secrets.together_api_key")); val != "" {
		return val, KeySourceNestedFile
	}
	if val := strings.TrimSpace(secrets.GetString("together_api_key")); val != "" {
		return val, KeySourceFlatFile
	}
	if val := strings.TrimSpace(os.Getenv(apiKeyEnv)); val != "" {
		return val, KeySourceEnv
	}
	return "", ""
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.History.Backend {
	case "", HistoryNone, HistoryMongo, HistoryFilesystem:
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 3*time.Minute)

	v.SetDefault("llm.base_url", "https://api.together.xyz/v1")
	v.SetDefault("llm.model", "meta-llama/Llama-3.3-70B-Instruct-Turbo")
	v.SetDefault("llm.timeout", 2*time.Minute)

	v.SetDefault("metrics.addr", ":2112")

	v.SetDefault("history.backend", HistoryNone)
	v.SetDefault("history.dir", "./generations")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.db", "codegen")

	v.SetDefault("amqp.url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func redact(secret string) string {
	if secret == "" {
		return "<missing>"
	}
	return "<redacted>"
}
