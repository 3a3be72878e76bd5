// joint-follower: drives the iCub right hand to a fixed target with point-to-point moves
// Usage: go run ./cmd/joint-follower [-config follower.yaml] [-duration 4s]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/geo/r3"

	"github.com/brillian32/icub-arm-imitator/internal/config"
	"github.com/brillian32/icub-arm-imitator/internal/log"
	"github.com/brillian32/icub-arm-imitator/pkg/cartesian"
	"github.com/brillian32/icub-arm-imitator/pkg/control"
	"github.com/brillian32/icub-arm-imitator/pkg/driver"
	"github.com/brillian32/icub-arm-imitator/pkg/posebus"
	"github.com/brillian32/icub-arm-imitator/pkg/posesource"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	network    = flag.String("network", "", "Robot middleware URL (overrides config)")
	duration   = flag.Duration("duration", 0, "Run time (overrides config)")
	period     = flag.Duration("period", 0, "Control period (overrides config)")
	monitor    = flag.String("monitor", "", "Pose topic to log each tick (overrides config)")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	cfg, err := config.Load(*configPath, config.DefaultFollower())
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
		case "duration":
			cfg.Duration = *duration
		case "period":
			cfg.Period = *period
		case "monitor":
			cfg.Source.MonitorTopic = *monitor
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Invalid configuration: %v\n", err)
		return driver.ExitFailure
	}
	log.Init(cfg.LogLevel)

	target := r3.Vector{X: cfg.Source.Target[0], Y: cfg.Source.Target[1], Z: cfg.Source.Target[2]}

	fmt.Println()
	fmt.Println("🦾 iCub joint follower")
	fmt.Printf("   Device:  %s → %s\n", cfg.Device.Local, cfg.Device.Remote)
	fmt.Printf("   Target:  (%.3f, %.3f, %.3f) m\n", target.X, target.Y, target.Z)
	fmt.Printf("   Period:  %v, run time %v\n", cfg.Period, cfg.Duration)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var task *control.Task
	code := driver.Run(ctx, driver.Options{Network: cfg.Network, Duration: cfg.Duration}, func() driver.Task {
		src := &posesource.Fixed{Position: target, Policy: cfg.OrientationPolicy()}
		task = control.New(cfg.ControlConfig(), cartesian.HTTPOpener{}, src)
		if cfg.Source.MonitorTopic != "" {
			task.SetMonitor(posebus.NewSubscriber(cfg.Network, cfg.Source.MonitorTopic, cfg.Source.Node))
		}
		return task
	})

	if code != driver.ExitOK {
		fmt.Println("❌ Joint follower failed")
		return code
	}

	stats := task.Stats()
	fmt.Printf("✅ Done: %d ticks, %d commands, %d monitor samples\n", stats.Ticks, stats.Commands, stats.Monitored)
	return code
}
