// icubsim: Simulated iCub cartesian controller and pose broker
// Serves the cartesian controller API and the pose stream on one port
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"

	"github.com/brillian32/icub-arm-imitator/internal/log"
	"github.com/brillian32/icub-arm-imitator/pkg/cartesian"
	"github.com/brillian32/icub-arm-imitator/pkg/cartsim"
	"github.com/brillian32/icub-arm-imitator/pkg/posebus"
)

var (
	version  = "1.0.0"
	addr     = flag.String("addr", ":10000", "HTTP listen address")
	remotes  = flag.String("remotes", cartesian.DefaultRemote, "Comma-separated cartesian controller names to simulate")
	step     = flag.Duration("step", cartsim.DefaultStep, "Simulation step")
	logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	// Override from environment
	if envAddr := os.Getenv("ICUBSIM_ADDR"); envAddr != "" {
		*addr = envAddr
	}
	log.Init(*logLevel)

	fmt.Println()
	fmt.Println("🦿 icubsim v" + version)
	fmt.Println("   Simulated cartesian controllers and pose broker")
	fmt.Println()

	names := splitList(*remotes)
	srv := cartsim.NewServer(*step, names...)
	app := srv.App()

	broker := posebus.NewBroker()
	broker.RegisterRoutes(app)
	broker.RegisterAPIRoutes(app)

	registerMetrics(app, srv, broker)

	// Start server
	go func() {
		log.Info("🚀 Starting server", "addr", *addr)
		for _, name := range names {
			log.Info("   Controller", "remote", name)
		}
		log.Info("   Pose stream", "subscribe", posebus.PathSubscribe, "publish", posebus.PathPublish)

		if err := srv.Listen(*addr); err != nil {
			log.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\n👋 Shutting down...")
	if err := srv.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}
	fmt.Println("✅ Server stopped")
}

// registerMetrics serves session and pose broker counters in Prometheus text format.
func registerMetrics(app *fiber.App, srv *cartsim.Server, broker *posebus.Broker) {
	app.Get("/metrics", func(c *fiber.Ctx) error {
		stats := broker.Stats()
		return c.SendString(fmt.Sprintf(`# HELP icubsim_sessions Open cartesian sessions
# TYPE icubsim_sessions gauge
icubsim_sessions %d

# HELP icubsim_samples_received Total pose samples received
# TYPE icubsim_samples_received counter
icubsim_samples_received %d

# HELP icubsim_samples_delivered Total pose samples delivered
# TYPE icubsim_samples_delivered counter
icubsim_samples_delivered %d

# HELP icubsim_samples_rejected Total malformed pose samples
# TYPE icubsim_samples_rejected counter
icubsim_samples_rejected %d
`, srv.SessionCount(), stats.Received, stats.Delivered, stats.Rejected))
	})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
