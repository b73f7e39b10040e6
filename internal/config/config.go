package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/structs"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	CONFIGS_DIR_NAME        = ".config"
	LANBEAM_CONFIG_DIR_NAME = "lanbeam"
	CONFIG_FILE_NAME        = "config"
	CONFIG_FILE_EXT         = "yml"

	StyleRich = "rich"
	StyleRaw  = "raw"

	SignalingWS   = "ws"
	SignalingMQTT = "mqtt"
)

type Config struct {
	// Relay is empty when the relay should be discovered on the local network.
	Relay              string        `mapstructure:"relay"`
	Signaling          string        `mapstructure:"signaling"`
	MQTTBroker         string        `mapstructure:"mqtt_broker"`
	MQTTTopicPrefix    string        `mapstructure:"mqtt_topic_prefix"`
	STUNServers        []string      `mapstructure:"stun_servers"`
	Trickle            bool          `mapstructure:"trickle"`
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
	ChunkSize          int           `mapstructure:"chunk_size"`
	HighWaterMark      uint64        `mapstructure:"high_water_mark"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	ResetDelay         time.Duration `mapstructure:"reset_delay"`
	DeviceName         string        `mapstructure:"device_name"`
	DownloadDir        string        `mapstructure:"download_dir"`
	Overwrite          bool          `mapstructure:"overwrite"`
	Verbose            bool          `mapstructure:"verbose"`
	TuiStyle           string        `mapstructure:"tui_style"`
	RelayPort          int           `mapstructure:"relay_port"`
	Advertise          bool          `mapstructure:"advertise"`
	CopyInvite         bool          `mapstructure:"copy_invite"`
	History            bool          `mapstructure:"history"`
}

func GetDefault() Config {
	return Config{
		Relay:              "",
		Signaling:          SignalingWS,
		MQTTBroker:         "tcp://localhost:1883",
		MQTTTopicPrefix:    "lanbeam/signal",
		STUNServers:        []string{"stun:stun.l.google.com:19302"},
		Trickle:            false,
		NegotiationTimeout: 30 * time.Second,
		ChunkSize:          16 << 10,
		HighWaterMark:      1 << 20,
		PollInterval:       5 * time.Millisecond,
		ResetDelay:         2 * time.Second,
		DeviceName:         "",
		DownloadDir:        "",
		Overwrite:          false,
		Verbose:            false,
		TuiStyle:           StyleRich,
		RelayPort:          8080,
		Advertise:          true,
		CopyInvite:         false,
		History:            true,
	}
}

func (config Config) Map() map[string]any {
	m := map[string]any{}
	for _, field := range structs.Fields(config) {
		key := field.Tag("mapstructure")
		value := field.Value()
		m[key] = value
	}
	return m
}

// Yaml renders the config with keys in alphabetical order.
func (config Config) Yaml() []byte {
	m := config.Map()
	keys := maps.Keys(m)
	slices.Sort(keys)
	var builder strings.Builder
	for _, k := range keys {
		builder.WriteString(fmt.Sprintf("%s: %s", k, yamlValue(m[k])))
		builder.WriteRune('\n')
	}
	return []byte(builder.String())
}

func yamlValue(v any) string {
	switch v := v.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case []string:
		quoted := make([]string, 0, len(v))
		for _, s := range v {
			quoted = append(quoted, fmt.Sprintf("%q", s))
		}
		return "[" + strings.Join(quoted, ", ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Validate checks the values that cannot be checked by their type alone.
func (config Config) Validate() error {
	switch config.Signaling {
	case SignalingWS, SignalingMQTT:
	default:
		return fmt.Errorf("invalid signaling %q, expected one of (%s, %s)", config.Signaling, SignalingWS, SignalingMQTT)
	}
	switch config.TuiStyle {
	case StyleRich, StyleRaw:
	default:
		return fmt.Errorf("invalid tui style %q, expected one of (%s, %s)", config.TuiStyle, StyleRich, StyleRaw)
	}
	if config.Signaling == SignalingMQTT && config.MQTTBroker == "" {
		return fmt.Errorf("mqtt signaling requires mqtt_broker to be set")
	}
	if config.NegotiationTimeout <= 0 {
		return fmt.Errorf("negotiation_timeout must be positive, got %s", config.NegotiationTimeout)
	}
	// Data channel peers read at most 64 KiB minus one byte per message.
	if config.ChunkSize <= 0 || config.ChunkSize > math.MaxUint16 {
		return fmt.Errorf("chunk_size must be between 1 and %d, got %d", math.MaxUint16, config.ChunkSize)
	}
	if config.HighWaterMark < 2*uint64(config.ChunkSize) {
		return fmt.Errorf("high_water_mark (%d) must be at least twice chunk_size (%d)", config.HighWaterMark, config.ChunkSize)
	}
	return nil
}

func IsDefault(key string) bool {
	defaults := GetDefault().Map()
	def, ok := defaults[key]
	if !ok {
		return false
	}
	// Values read from the file are untyped, compare their rendering.
	return fmt.Sprint(viper.Get(key)) == fmt.Sprint(def)
}

// Load returns the config resolved by viper from flags, config file and defaults.
func Load() (Config, error) {
	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return c, nil
}

// Dir returns the directory holding the config file and local state.
func Dir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolving home dir: %w", err)
	}
	return filepath.Join(home, CONFIGS_DIR_NAME, LANBEAM_CONFIG_DIR_NAME), nil
}

// Init initializes the viper config.
// `config.yml` is created in $HOME/.config/lanbeam if not already existing.
// NOTE: The precedence levels of viper are the following: flags -> config file -> defaults.
func Init() error {
	configPath, err := Dir()
	if err != nil {
		return err
	}
	viper.AddConfigPath(configPath)
	viper.SetConfigName(CONFIG_FILE_NAME)
	viper.SetConfigType(CONFIG_FILE_EXT)

	if err := viper.ReadInConfig(); err != nil {
		// Create config file if not found.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := os.MkdirAll(configPath, os.ModePerm); err != nil {
				return fmt.Errorf("creating config directory: %w", err)
			}
			file := filepath.Join(configPath, fmt.Sprintf("%s.%s", CONFIG_FILE_NAME, CONFIG_FILE_EXT))
			if err := os.WriteFile(file, GetDefault().Yaml(), 0o644); err != nil {
				return fmt.Errorf("writing defaults to config file: %w", err)
			}
			viper.SetConfigFile(file)
		} else {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	for k, v := range GetDefault().Map() {
		viper.SetDefault(k, v)
	}
	return nil
}
