package yapper

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var validate = validator.New()

// Config controls how the SDK connects and caches.
type Config struct {
	// URL is the realtime socket endpoint, e.g. "wss://yapper.cmp27.space/messages".
	URL string `mapstructure:"url" validate:"required,url"`
	// RESTBaseURL is the API root the chat and message endpoints hang off.
	RESTBaseURL string `mapstructure:"rest_base_url" validate:"required,url"`

	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" validate:"gte=0"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	PingInterval     time.Duration `mapstructure:"ping_interval" validate:"gte=0"`
	SendBuffer       int           `mapstructure:"send_buffer" validate:"gte=1"`

	AutoReconnect        bool          `mapstructure:"auto_reconnect"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" validate:"gte=0"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay" validate:"gte=0"`

	ChatsPerPage    int           `mapstructure:"chats_per_page" validate:"gte=1,lte=100"`
	MessagesPerPage int           `mapstructure:"messages_per_page" validate:"gte=1,lte=200"`
	CacheTime       time.Duration `mapstructure:"cache_time" validate:"gte=0"`
	FetchRetries    int           `mapstructure:"fetch_retries" validate:"gte=0"`
	FetchRetryDelay time.Duration `mapstructure:"fetch_retry_delay" validate:"gte=0"`

	// TypingTimeout clears a remote typing flag after this much silence. Zero disables it.
	TypingTimeout time.Duration `mapstructure:"typing_timeout" validate:"gte=0"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
		PingInterval:         25 * time.Second,
		SendBuffer:           16,
		AutoReconnect:        true,
		MaxReconnectAttempts: 5,
		ReconnectDelay:       time.Second,
		ChatsPerPage:         20,
		MessagesPerPage:      50,
		CacheTime:            5 * time.Minute,
		FetchRetries:         3,
		FetchRetryDelay:      time.Second,
		TypingTimeout:        5 * time.Second,
	}
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return WrapError(ErrorInvalidConfig, "invalid config", err)
	}
	return nil
}

// LoadConfig reads configuration from an optional YAML file and YAPPER_* environment
// variables on top of DefaultConfig. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("yapper")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault("url", def.URL)
	v.SetDefault("rest_base_url", def.RESTBaseURL)
	v.SetDefault("handshake_timeout", def.HandshakeTimeout)
	v.SetDefault("read_timeout", def.ReadTimeout)
	v.SetDefault("write_timeout", def.WriteTimeout)
	v.SetDefault("ping_interval", def.PingInterval)
	v.SetDefault("send_buffer", def.SendBuffer)
	v.SetDefault("auto_reconnect", def.AutoReconnect)
	v.SetDefault("max_reconnect_attempts", def.MaxReconnectAttempts)
	v.SetDefault("reconnect_delay", def.ReconnectDelay)
	v.SetDefault("chats_per_page", def.ChatsPerPage)
	v.SetDefault("messages_per_page", def.MessagesPerPage)
	v.SetDefault("cache_time", def.CacheTime)
	v.SetDefault("fetch_retries", def.FetchRetries)
	v.SetDefault("fetch_retry_delay", def.FetchRetryDelay)
	v.SetDefault("typing_timeout", def.TypingTimeout)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, WrapError(ErrorInvalidConfig, fmt.Sprintf("read config %s", path), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, WrapError(ErrorInvalidConfig, "decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
