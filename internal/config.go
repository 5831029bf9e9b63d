package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		IdleTimeout  time.Duration `yaml:"idle_timeout"`
	} `yaml:"server"`

	Game struct {
		RoundDuration   time.Duration `yaml:"round_duration"`
		SpecialInterval time.Duration `yaml:"special_interval"`
		InitialDots     int           `yaml:"initial_dots"`
		MaxPlayers      int           `yaml:"max_players"`
	} `yaml:"game"`

	NATS struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"nats"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig 返回預設配置
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = 3001
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second
	cfg.Game.RoundDuration = 60 * time.Second
	cfg.Game.SpecialInterval = 10 * time.Second
	cfg.Game.InitialDots = 20
	cfg.Game.MaxPlayers = 8
	cfg.NATS.Enabled = false
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// LoadConfig 載入配置檔，檔案不存在時使用預設值
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// RoomConfig 取出房間規則部分
func (c *Config) RoomConfig() RoomConfig {
	return RoomConfig{
		RoundDuration:   c.Game.RoundDuration,
		SpecialInterval: c.Game.SpecialInterval,
		InitialDots:     c.Game.InitialDots,
		MaxPlayers:      c.Game.MaxPlayers,
	}
}
