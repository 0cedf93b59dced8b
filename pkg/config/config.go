package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	defaultExtension = "yaml"
	defaultTagName   = "yaml"

	DefaultEnvPrefix        = "SOUNDSTUDIO"
	DefaultLoginPath        = "/login"
	DefaultRefreshThreshold = 5 * time.Minute
	DefaultRequestTimeout   = 30 * time.Second
	DefaultCallbackPort     = 8085
)

type Binder interface {
	Bind(v *viper.Viper) error
}

type Loader interface {
	Load(name, path, envPrefix string, binder Binder) (Config, error)
}

type Config struct {
	Google Google `yaml:"google"`

	APIURL                  string `yaml:"api_url"`
	LoginPath               string `yaml:"login_path"`
	SessionFile             string `yaml:"session_file"`
	LogLevel                string `yaml:"log_level"`
	RefreshThresholdSeconds int    `yaml:"refresh_threshold_seconds"`
	RequestTimeoutSeconds   int    `yaml:"request_timeout_seconds"`
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.APIURL, validation.Required, is.URL),
		validation.Field(&c.Google, validation.Required),
		validation.Field(&c.LogLevel, validation.Required, validation.In("trace", "debug", "info", "warn", "error")),
		validation.Field(&c.RefreshThresholdSeconds, validation.Min(0)),
		validation.Field(&c.RequestTimeoutSeconds, validation.Min(0)),
	)
}

// RefreshThreshold is how close to expiry an access token may get before it
// is refreshed ahead of a request.
func (c Config) RefreshThreshold() time.Duration {
	if c.RefreshThresholdSeconds == 0 {
		return DefaultRefreshThreshold
	}

	return time.Duration(c.RefreshThresholdSeconds) * time.Second
}

func (c Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds == 0 {
		return DefaultRequestTimeout
	}

	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) LoginEntryPoint() string {
	if c.LoginPath == "" {
		return DefaultLoginPath
	}

	return c.LoginPath
}

// SessionFilePath returns the configured session file, or the per-user
// default under the user config directory.
func (c Config) SessionFilePath() (string, error) {
	if c.SessionFile != "" {
		return c.SessionFile, nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}

	return filepath.Join(dir, "soundstudio", "session.json"), nil
}

type Google struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackPort int    `yaml:"callback_port"`
}

func (g Google) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.ClientID, validation.Required),
		validation.Field(&g.ClientSecret, validation.Required),
		validation.Field(&g.CallbackPort, validation.Min(0), validation.Max(65535)),
	)
}

func (g Google) Port() int {
	if g.CallbackPort == 0 {
		return DefaultCallbackPort
	}

	return g.CallbackPort
}

type FileParts struct {
	FileName string
	Path     string
}

func ProcessConfigPath(configFile string) (FileParts, error) {
	absolutePath, err := filepath.Abs(configFile)
	if err != nil {
		return FileParts{}, fmt.Errorf("convert to absolute path: %w", err)
	}

	fileName := filepath.Base(absolutePath)
	path := filepath.Dir(absolutePath)
	extension := filepath.Ext(fileName)

	if strings.ReplaceAll(strings.ToLower(extension), ".", "") != defaultExtension {
		return FileParts{}, fmt.Errorf("config file must have extension %s, got: %s", defaultExtension, extension)
	}

	return FileParts{
		FileName: fileName[:len(fileName)-len(extension)],
		Path:     path,
	}, nil
}

func NewFileSystemLoader() *FileSystemLoader {
	return &FileSystemLoader{}
}

type FileSystemLoader struct{}

func (fs *FileSystemLoader) Load(name, path, envPrefix string, b Binder) (Config, error) {
	v := viper.New()

	v.AddConfigPath(path)
	v.SetConfigName(name)
	v.SetConfigType(defaultExtension)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if b != nil {
		err := b.Bind(v)
		if err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix(envPrefix)

	err := v.ReadInConfig()
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var config Config

	err = v.Unmarshal(&config, func(cfg *mapstructure.DecoderConfig) {
		cfg.TagName = defaultTagName
	})
	if err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return config, nil
}

type EnvBinder struct {
	binders map[string]string
}

func (e *EnvBinder) Bind(v *viper.Viper) error {
	for envVar, key := range e.binders {
		err := v.BindEnv(key, envVar)
		if err != nil {
			return fmt.Errorf("bind env var %s to key %s: %w", envVar, key, err)
		}
	}

	return nil
}

func NewEnvBinder(binders map[string]string) *EnvBinder {
	return &EnvBinder{
		binders: binders,
	}
}

func NewDefaultEnvBinder() *EnvBinder {
	return NewEnvBinder(map[string]string{
		"GOOGLE_CLIENT_ID":     "google.client_id",
		"GOOGLE_CLIENT_SECRET": "google.client_secret",
		"API_URL":              "api_url",
	})
}
