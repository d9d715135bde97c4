// Voice assistant daemon: waits for the button, records a question, asks
// OpenAI and speaks the answer on the Bluetooth speaker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/spf13/pflag"

	"github.com/teslashibe/go-assistant/internal/config"
	"github.com/teslashibe/go-assistant/internal/log"
	"github.com/teslashibe/go-assistant/pkg/assistant"
	"github.com/teslashibe/go-assistant/pkg/audioio"
)

func main() {
	cfg, level, format, envFile := parseFlags()

	log.Init(level, format)
	if err := config.LoadDotEnv(envFile); err != nil {
		log.Warn("env file not loaded", "path", envFile, "error", err)
	}
	cfg.Logger = log.L()

	app, err := assistant.New(cfg)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		app.Shutdown()
		os.Exit(1)
	}
	log.Info("goodbye")
}

// parseFlags parses command line flags and returns configuration.
func parseFlags() (cfg assistant.Config, level, format, envFile string) {
	cfg = assistant.DefaultConfig()

	cli.StringVarP(&envFile, "env", "e", ".env", "Env file path")
	cli.StringVarP(&level, "log", "l", "info", "Log level: debug, info, warn, error")
	cli.StringVar(&format, "log-format", "text", "Log format: text or json")
	cli.StringVarP(&cfg.ConfigDir, "config-dir", "c", cfg.ConfigDir, "Directory holding config-*.txt (env "+config.EnvConfigDir+")")
	cli.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Status server address, empty to disable (env "+config.EnvListenAddr+")")
	cli.StringVar(&cfg.TempDir, "temp-dir", cfg.TempDir, "Audio scratch directory (env "+config.EnvTempDir+")")
	cli.StringVarP(&cfg.SocksProxy, "proxy", "p", "", "SOCKS5 proxy for OpenAI (env "+config.EnvSocksProxy+")")
	backend := cli.String("audio", string(cfg.AudioBackend), "Audio backend: auto, portaudio, mock")
	cli.StringVar(&cfg.AudioDevice, "input", "", "Input device name substring")
	cli.BoolVar(&cfg.NoGPIO, "no-gpio", false, "Disable the hardware button")
	cli.BoolVar(&cfg.SkipSetup, "skip-setup", false, "Skip speaker setup and the ready announcement")
	cli.BoolVar(&cfg.Watch, "watch", cfg.Watch, "Reload config files when they change")
	cli.DurationVar(&cfg.SupervisorInterval, "probe-interval", 0, "Speaker probe interval (default 30s)")
	cli.Parse()

	cfg.AudioBackend = audioio.Backend(*backend)
	return cfg, level, format, envFile
}
