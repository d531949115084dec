package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/bridgectl/internal/mockinterp"
)

// fileConfig mirrors the [mock] table of bridgectl.toml so one config file
// can drive both binaries.
type fileConfig struct {
	Mock mockSection `toml:"mock"`
}

type mockSection struct {
	ResponseDelayMs  int64          `toml:"response_delay_ms"`
	ErrorProbability float64        `toml:"error_probability"`
	MaxPrograms      int            `toml:"max_programs"`
	Scenarios        []fileScenario `toml:"scenarios"`
}

type fileScenario struct {
	Command     string  `toml:"command"`
	Probability float64 `toml:"probability"`
	Kind        string  `toml:"kind"`
	Message     string  `toml:"message"`
}

func loadInterpConfig(path string) (mockinterp.Config, error) {
	cfg := mockinterp.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return mockinterp.Config{}, fmt.Errorf("load mockinterp config: %w", err)
	}

	if meta.IsDefined("mock", "response_delay_ms") {
		cfg.ResponseDelay = time.Duration(raw.Mock.ResponseDelayMs) * time.Millisecond
	}
	if meta.IsDefined("mock", "max_programs") {
		cfg.MaxPrograms = raw.Mock.MaxPrograms
	}
	if meta.IsDefined("mock", "error_probability") {
		if err := appendBlanketScenario(&cfg, raw.Mock.ErrorProbability); err != nil {
			return mockinterp.Config{}, err
		}
	}
	for i, sc := range raw.Mock.Scenarios {
		if sc.Probability < 0 || sc.Probability > 1 {
			return mockinterp.Config{}, fmt.Errorf("scenario[%d]: probability out of range", i)
		}
		if sc.Command == "" {
			return mockinterp.Config{}, fmt.Errorf("scenario[%d]: command is required", i)
		}
		cfg.Scenarios = append(cfg.Scenarios, mockinterp.ErrorScenario{
			Command:     sc.Command,
			Probability: sc.Probability,
			Kind:        sc.Kind,
			Message:     sc.Message,
		})
	}
	return cfg, nil
}

// appendBlanketScenario translates a flat error probability into a
// wildcard scenario matching every command.
func appendBlanketScenario(cfg *mockinterp.Config, probability float64) error {
	if probability < 0 || probability > 1 {
		return fmt.Errorf("error_probability out of range: %v", probability)
	}
	if probability == 0 {
		return nil
	}
	cfg.Scenarios = append(cfg.Scenarios, mockinterp.ErrorScenario{
		Command:     "*",
		Probability: probability,
		Kind:        "injected",
		Message:     "injected failure",
	})
	return nil
}

func applyFlagOverrides(cfg *mockinterp.Config, delayMs, maxPrograms int, errorProbability float64) error {
	if delayMs >= 0 {
		cfg.ResponseDelay = time.Duration(delayMs) * time.Millisecond
	}
	if maxPrograms > 0 {
		cfg.MaxPrograms = maxPrograms
	}
	if errorProbability >= 0 {
		if err := appendBlanketScenario(cfg, errorProbability); err != nil {
			return err
		}
	}
	return nil
}
