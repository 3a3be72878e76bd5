// arm-imitator: makes the iCub right hand follow a human operator's hand pose
// Usage: go run ./cmd/arm-imitator [-config imitator.yaml] [-topic /icub/jointPose]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/brillian32/icub-arm-imitator/internal/config"
	"github.com/brillian32/icub-arm-imitator/internal/log"
	"github.com/brillian32/icub-arm-imitator/pkg/cartesian"
	"github.com/brillian32/icub-arm-imitator/pkg/control"
	"github.com/brillian32/icub-arm-imitator/pkg/driver"
	"github.com/brillian32/icub-arm-imitator/pkg/posebus"
	"github.com/brillian32/icub-arm-imitator/pkg/posesource"
)

var (
	configPath  = flag.String("config", "", "YAML config file")
	network     = flag.String("network", "", "Robot middleware URL (overrides config)")
	topic       = flag.String("topic", "", "Human pose topic (overrides config)")
	duration    = flag.Duration("duration", 0, "Run time (overrides config)")
	period      = flag.Duration("period", 0, "Control period (overrides config)")
	factor      = flag.Float64("transfer-factor", 0, "Human to robot displacement scale (overrides config)")
	orientation = flag.String("orientation", "", "Orientation policy: hold, zero, map (overrides config)")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	cfg, err := config.Load(*configPath, config.DefaultImitator())
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return driver.ExitFailure
	}
	cfg.ApplyEnv()

	// Explicit flags win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "network":
			cfg.Network = *network
		case "topic":
			cfg.Source.Topic = *topic
		case "duration":
			cfg.Duration = *duration
		case "period":
			cfg.Period = *period
		case "transfer-factor":
			cfg.Source.TransferFactor = *factor
		case "orientation":
			cfg.Source.Orientation = *orientation
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Invalid configuration: %v\n", err)
		return driver.ExitFailure
	}
	log.Init(cfg.LogLevel)

	fmt.Println()
	fmt.Println("🤖 iCub arm imitator")
	fmt.Printf("   Device:  %s → %s\n", cfg.Device.Local, cfg.Device.Remote)
	fmt.Printf("   Topic:   %s (node %s)\n", cfg.Source.Topic, cfg.Source.Node)
	fmt.Printf("   Mapping: ×%.2f, orientation %s\n", cfg.Source.TransferFactor, cfg.Source.Orientation)
	fmt.Printf("   Period:  %v, run time %v\n", cfg.Period, cfg.Duration)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var task *control.Task
	code := driver.Run(ctx, driver.Options{Network: cfg.Network, Duration: cfg.Duration}, func() driver.Task {
		sub := posebus.NewSubscriber(cfg.Network, cfg.Source.Topic, cfg.Source.Node)
		src := &posesource.Imitation{
			Reader:         sub,
			TransferFactor: cfg.Source.TransferFactor,
			Policy:         cfg.OrientationPolicy(),
		}
		task = control.New(cfg.ControlConfig(), cartesian.HTTPOpener{}, src)
		return task
	})

	if code != driver.ExitOK {
		fmt.Println("❌ Arm imitator failed")
		return code
	}

	stats := task.Stats()
	fmt.Printf("✅ Done: %d ticks, %d commands, %d ticks without a sample\n", stats.Ticks, stats.Commands, stats.Skipped)
	return code
}
