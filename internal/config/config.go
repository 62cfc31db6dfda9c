// Package config layers defaults, a TOML file, AFINIA_* environment
// variables and command-line flags into one Config.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/afinia/internal/codec"
	"github.com/danielpatrickdp/afinia/internal/gate"
	"github.com/danielpatrickdp/afinia/internal/logging"
	"github.com/danielpatrickdp/afinia/internal/server"
	"github.com/danielpatrickdp/afinia/internal/session"
	"github.com/danielpatrickdp/afinia/internal/signals"
	"github.com/danielpatrickdp/afinia/internal/state"
	"github.com/danielpatrickdp/afinia/internal/update"
)

const appName = "afinia"

// EnvPrefix prefixes every environment override, e.g. AFINIA_LLM_MODEL.
const EnvPrefix = "AFINIA"

// #region types

// Config is the full service configuration.
type Config struct {
	Log        logging.Config      `mapstructure:"log" toml:"log"`
	HTTP       server.Config       `mapstructure:"http" toml:"http"`
	GRPC       GRPCConfig          `mapstructure:"grpc" toml:"grpc"`
	LLM        codec.Config        `mapstructure:"llm" toml:"llm"`
	Store      state.Config        `mapstructure:"store" toml:"store"`
	Session    session.Config      `mapstructure:"session" toml:"session"`
	Policy     update.UpdateConfig `mapstructure:"policy" toml:"policy"`
	Gate       GateConfig          `mapstructure:"gate" toml:"gate"`
	Extractor  ExtractorConfig     `mapstructure:"extractor" toml:"extractor"`
	Provenance ProvenanceConfig    `mapstructure:"provenance" toml:"provenance"`
}

// GRPCConfig enables the gRPC listener when Addr is set.
type GRPCConfig struct {
	Addr string `mapstructure:"addr" toml:"addr"`
}

// GateConfig adds an optional YAML lexicon file on top of inline keywords.
type GateConfig struct {
	gate.GateConfig `mapstructure:",squash"`
	LexiconPath     string `mapstructure:"lexicon_path" toml:"lexicon_path"`
}

// ExtractorConfig overrides the hidden block markers.
type ExtractorConfig struct {
	Open  string `mapstructure:"open" toml:"open"`
	Close string `mapstructure:"close" toml:"close"`
}

// ProvenanceConfig points at the turn log database; empty disables it.
type ProvenanceConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// #endregion types

// #region defaults

// DefaultPath is $XDG_CONFIG_HOME/afinia/config.toml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.toml")
}

// DataDir is $XDG_DATA_HOME/afinia.
func DataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// Default returns a complete configuration with every knob at its default.
func Default() Config {
	return Config{
		Log:  logging.Config{Level: "info", Format: "json"},
		HTTP: server.DefaultConfig(),
		LLM:  codec.DefaultConfig(),
		Store: state.Config{
			Backend: state.BackendFile,
			Dir:     filepath.Join(DataDir(), "users"),
			Path:    filepath.Join(DataDir(), "afinia.db"),
		},
		Session: session.DefaultConfig(),
		Policy:  update.DefaultUpdateConfig(),
		Gate:    GateConfig{GateConfig: gate.DefaultGateConfig()},
		Extractor: ExtractorConfig{
			Open:  signals.OpenMarker,
			Close: signals.CloseMarker,
		},
	}
}

// #endregion defaults

// #region load

// Load reads configuration into v. path may be empty, in which case the
// default location is tried and a missing file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	base, err := encode(Default())
	if err != nil {
		return Config{}, err
	}
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultPath()); err == nil {
			path = DefaultPath()
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case codec.ProviderGemini:
			cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		default:
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	if cfg.Gate.LexiconPath != "" {
		kw, err := gate.LoadKeywords(cfg.Gate.LexiconPath)
		if err != nil {
			return Config{}, err
		}
		if cfg.Gate.Keywords == nil {
			cfg.Gate.Keywords = map[string][]string{}
		}
		for name, words := range kw {
			cfg.Gate.Keywords[name] = append(cfg.Gate.Keywords[name], words...)
		}
	}

	cfg.Store.DefaultValue = cfg.Policy.DefaultValue
	return cfg, nil
}

// #endregion load

// #region validate

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	p := c.Policy
	factors := []struct {
		name  string
		value float64
	}{
		{"policy.factor", p.Factor},
		{"policy.rising_low_factor", p.RisingLowFactor},
		{"policy.rising_high_factor", p.RisingHighFactor},
	}
	for _, f := range factors {
		if f.value < 0 || f.value > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", f.name, f.value))
		}
	}
	if p.MaxStepUp < 0 || p.MaxStepDown < 0 {
		errs = append(errs, errors.New("policy step caps must not be negative"))
	}
	if p.MinDelta < 0 || p.MaxUpdatesPerTurn < 0 {
		errs = append(errs, errors.New("policy.min_delta and policy.max_updates_per_turn must not be negative"))
	}
	if p.LowWatermark > p.HighWatermark {
		errs = append(errs, fmt.Errorf("policy.low_watermark %d exceeds high_watermark %d", p.LowWatermark, p.HighWatermark))
	}
	if p.Mode != update.ModeAbsolute && p.Mode != update.ModeDelta {
		errs = append(errs, fmt.Errorf("policy.mode must be %q or %q, got %q", update.ModeAbsolute, update.ModeDelta, p.Mode))
	}
	if p.DefaultValue < 0 || p.DefaultValue > 100 {
		errs = append(errs, fmt.Errorf("policy.default_value must be within [0,100], got %d", p.DefaultValue))
	}

	switch c.Store.Backend {
	case state.BackendFile:
		if c.Store.Dir == "" {
			errs = append(errs, errors.New("store.dir is required for the file backend"))
		}
	case state.BackendSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite backend"))
		}
	case state.BackendPostgres:
		if c.Store.URL == "" {
			errs = append(errs, errors.New("store.url is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}

	switch c.LLM.Provider {
	case codec.ProviderOpenAI, codec.ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q", c.LLM.Provider))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.Session.MaxMessages < 0 || c.Session.TTL < 0 {
		errs = append(errs, errors.New("session limits must not be negative"))
	}
	if (c.Extractor.Open == "") != (c.Extractor.Close == "") {
		errs = append(errs, errors.New("extractor.open and extractor.close must be set together"))
	}
	return errors.Join(errs...)
}

// RequireAPIKey is checked only by commands that call the model.
func (c Config) RequireAPIKey() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("no API key: set llm.api_key, %s_LLM_API_KEY, OPENAI_API_KEY or GEMINI_API_KEY", EnvPrefix)
	}
	return nil
}

// #endregion validate

// #region write

// Write saves cfg as TOML at path, creating parent directories. The API key
// is never written.
func Write(path string, cfg Config) error {
	cfg.LLM.APIKey = ""
	data, err := encode(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Encode writes cfg as TOML to w with the API key blanked.
func Encode(w io.Writer, cfg Config) error {
	cfg.LLM.APIKey = ""
	data, err := encode(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func encode(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// #endregion write
