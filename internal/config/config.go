package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type BridgeConfig struct {
	Name               string     `toml:"name"`
	PoolSize           int        `toml:"pool_size"`
	Overflow           int        `toml:"overflow"`
	CheckoutTimeoutMs  int        `toml:"checkout_timeout_ms"`
	OperationTimeoutMs int        `toml:"operation_timeout_ms"`
	WorkerCmd          []string   `toml:"worker_cmd"`
	AdminAddr          string     `toml:"admin_addr"`
	CorsOrigins        []string   `toml:"cors_origins"`
	Mock               MockConfig `toml:"mock"`
}

type MockConfig struct {
	ResponseDelayMs  int     `toml:"response_delay_ms"`
	ErrorProbability float64 `toml:"error_probability"`
	MaxPrograms      int     `toml:"max_programs"`
}

func LoadBridgeConfig(path string) (BridgeConfig, error) {
	var cfg BridgeConfig
	if err := loadToml(path, &cfg); err != nil {
		return BridgeConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "bridge-ctl"
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 4
	}
	if cfg.Overflow == 0 {
		cfg.Overflow = 2
	}
	if cfg.CheckoutTimeoutMs == 0 {
		cfg.CheckoutTimeoutMs = 5000
	}
	if cfg.OperationTimeoutMs == 0 {
		cfg.OperationTimeoutMs = 30000
	}
	if cfg.AdminAddr == "" {
		cfg.AdminAddr = ":9200"
	}
	if err := ValidateBridgeConfig(cfg); err != nil {
		return BridgeConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateBridgeConfig(cfg BridgeConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("bridge config missing name")
	}
	if cfg.PoolSize < 1 {
		return fmt.Errorf("pool_size must be at least 1")
	}
	if cfg.Overflow < 0 {
		return fmt.Errorf("overflow cannot be negative")
	}
	if cfg.CheckoutTimeoutMs < 1 {
		return fmt.Errorf("checkout_timeout_ms must be positive")
	}
	if cfg.OperationTimeoutMs < 1 {
		return fmt.Errorf("operation_timeout_ms must be positive")
	}
	if len(cfg.WorkerCmd) == 0 {
		return fmt.Errorf("worker_cmd is required")
	}
	if strings.TrimSpace(cfg.WorkerCmd[0]) == "" {
		return fmt.Errorf("worker_cmd[0] cannot be blank")
	}
	if strings.TrimSpace(cfg.AdminAddr) == "" {
		return fmt.Errorf("bridge config missing admin_addr")
	}
	if cfg.Mock.ErrorProbability < 0 || cfg.Mock.ErrorProbability > 1 {
		return fmt.Errorf("mock.error_probability must be in [0, 1]")
	}
	return nil
}

func (c BridgeConfig) CheckoutTimeout() time.Duration {
	return time.Duration(c.CheckoutTimeoutMs) * time.Millisecond
}

func (c BridgeConfig) OperationTimeout() time.Duration {
	return time.Duration(c.OperationTimeoutMs) * time.Millisecond
}
