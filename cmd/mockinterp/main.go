package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/bridgectl/internal/mockinterp"
	"github.com/danmuck/bridgectl/internal/observability"
)

// mockinterp speaks the framed protocol on stdin/stdout. All logging goes
// to stderr so the response stream stays clean.
func main() {
	configPath := flag.String("config", "", "optional TOML config path (reads the [mock] table)")
	delayMs := flag.Int("delay-ms", -1, "artificial per-call delay, overrides config")
	maxPrograms := flag.Int("max-programs", -1, "program capacity, overrides config")
	errorProbability := flag.Float64("error-probability", -1, "blanket error injection rate, overrides config")
	flag.Parse()

	observability.InitLogger("mockinterp")

	cfg := mockinterp.DefaultConfig()
	if *configPath != "" {
		loaded, err := loadInterpConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load mockinterp config")
		}
		cfg = loaded
	}
	if err := applyFlagOverrides(&cfg, *delayMs, *maxPrograms, *errorProbability); err != nil {
		log.Fatal().Err(err).Msg("invalid flag value")
	}

	interp := mockinterp.New(cfg)
	if err := interp.Serve(os.Stdin, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("serve loop failed")
	}
	log.Info().Msg("mockinterp stopped")
}
