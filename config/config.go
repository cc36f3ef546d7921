package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/lab1702/robo-arena/game"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. ROBOARENA_SERVER_PORT
const EnvPrefix = "ROBOARENA"

// Config is the full server configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Game    GameConfig    `mapstructure:"game"`
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	Influx  InfluxConfig  `mapstructure:"influx"`
}

// ServerConfig holds network and access settings
type ServerConfig struct {
	Port                  int      `mapstructure:"port"`
	Name                  string   `mapstructure:"name"`
	DefaultTPS            int      `mapstructure:"defaultTps"`
	EnableInitialPosition bool     `mapstructure:"enableInitialPosition"`
	BotSecrets            []string `mapstructure:"botSecrets"`
	ControllerSecrets     []string `mapstructure:"controllerSecrets"`
	SendBufferSize        int      `mapstructure:"sendBufferSize"`
}

// GameConfig is the default game setup used when a start-game command does not carry one
type GameConfig struct {
	GameType           string        `mapstructure:"gameType"`
	ArenaWidth         int           `mapstructure:"arenaWidth"`
	ArenaHeight        int           `mapstructure:"arenaHeight"`
	MinParticipants    int           `mapstructure:"minParticipants"`
	MaxParticipants    int           `mapstructure:"maxParticipants"`
	NumberOfRounds     int           `mapstructure:"numberOfRounds"`
	GunCoolingRate     float64       `mapstructure:"gunCoolingRate"`
	MaxInactivityTurns int           `mapstructure:"maxInactivityTurns"`
	TurnTimeout        time.Duration `mapstructure:"turnTimeout"`
	ReadyTimeout       time.Duration `mapstructure:"readyTimeout"`
}

// LogConfig selects the log level and sinks
type LogConfig struct {
	Level   string        `mapstructure:"level"`
	File    string        `mapstructure:"file"`
	Graylog GraylogConfig `mapstructure:"graylog"`
}

// GraylogConfig enables shipping logs as GELF over UDP
type GraylogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// StorageConfig selects where match results are persisted
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // none, sqlite or postgres
	DSN    string `mapstructure:"dsn"`
}

// InfluxConfig enables per-turn statistics in InfluxDB
type InfluxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 7654)
	v.SetDefault("server.name", "Robo Arena")
	v.SetDefault("server.defaultTps", game.DefaultTurnsPerSecond)
	v.SetDefault("server.enableInitialPosition", false)
	v.SetDefault("server.botSecrets", []string{})
	v.SetDefault("server.controllerSecrets", []string{})
	v.SetDefault("server.sendBufferSize", 256)

	v.SetDefault("game.gameType", game.DefaultGameType)
	v.SetDefault("game.arenaWidth", game.DefaultArenaWidth)
	v.SetDefault("game.arenaHeight", game.DefaultArenaHeight)
	v.SetDefault("game.minParticipants", game.DefaultMinParticipants)
	v.SetDefault("game.maxParticipants", 0)
	v.SetDefault("game.numberOfRounds", game.DefaultNumberOfRounds)
	v.SetDefault("game.gunCoolingRate", game.DefaultGunCoolingRate)
	v.SetDefault("game.maxInactivityTurns", game.DefaultMaxInactivityTurns)
	v.SetDefault("game.turnTimeout", game.DefaultTurnTimeout)
	v.SetDefault("game.readyTimeout", game.DefaultReadyTimeout)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.graylog.enabled", false)
	v.SetDefault("log.graylog.address", "localhost:12201")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "robo-arena.db")

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "robo-arena")
	v.SetDefault("influx.bucket", "turns")
}

// Load reads configuration from the given file (JSON or YAML, optional when
// path is empty), applies ROBOARENA_* environment overrides and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Server.SendBufferSize <= 0 {
		return fmt.Errorf("invalid server.sendBufferSize %d", c.Server.SendBufferSize)
	}
	switch c.Storage.Driver {
	case "none", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if err := c.GameSetup().Validate(); err != nil {
		return fmt.Errorf("invalid game config: %w", err)
	}
	return nil
}

// GameSetup converts the game section into the engine's setup
func (c *Config) GameSetup() game.GameSetup {
	g := c.Game
	return game.GameSetup{
		GameType:                g.GameType,
		ArenaWidth:              g.ArenaWidth,
		ArenaHeight:             g.ArenaHeight,
		MinNumberOfParticipants: g.MinParticipants,
		MaxNumberOfParticipants: g.MaxParticipants,
		NumberOfRounds:          g.NumberOfRounds,
		GunCoolingRate:          g.GunCoolingRate,
		MaxInactivityTurns:      g.MaxInactivityTurns,
		TurnTimeout:             g.TurnTimeout,
		ReadyTimeout:            g.ReadyTimeout,
		DefaultTurnsPerSecond:   c.Server.DefaultTPS,
	}
}
