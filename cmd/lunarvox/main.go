package main

// PortAudio may resolve to PipeWire's JACK shim, which lives outside the
// default linker path.
// #cgo LDFLAGS: -Wl,--as-needed -Wl,--disable-new-dtags
// #cgo linux,amd64 LDFLAGS: -L/usr/lib64/pipewire-0.3/jack -Wl,-rpath,/usr/lib64/pipewire-0.3/jack
// #cgo linux,arm64 LDFLAGS: -L/usr/lib/aarch64-linux-gnu/pipewire-0.3/jack -Wl,-rpath,/usr/lib/aarch64-linux-gnu/pipewire-0.3/jack
import "C"

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/rubiojr/lunarvox/config"
	"github.com/rubiojr/lunarvox/internal/cli"
	"github.com/rubiojr/lunarvox/internal/output"
)

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, cli.ErrReported) {
			output.NewFormatter(os.Stderr).Error(err.Error())
		}
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment and config file still apply.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("LUNARVOX_CONFIG"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	deps := &cli.Dependencies{Config: cfg}
	return cli.NewRootCmd(deps).Execute()
}
