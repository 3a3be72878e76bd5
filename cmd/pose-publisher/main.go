// pose-publisher: publishes human hand poses for the arm imitator
// Plays a circle in front of the robot, or loops a YAML recording with -file
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brillian32/icub-arm-imitator/internal/config"
	"github.com/brillian32/icub-arm-imitator/internal/log"
	"github.com/brillian32/icub-arm-imitator/pkg/cartesian"
	"github.com/brillian32/icub-arm-imitator/pkg/pose"
	"github.com/brillian32/icub-arm-imitator/pkg/posebus"
)

var (
	network = flag.String("network", cartesian.DefaultNetwork, "Robot middleware URL")
	topic   = flag.String("topic", config.DefaultTopic, "Pose topic")
	node    = flag.String("node", "/pose_publisher", "Node name on the pose stream")
	rate    = flag.Duration("rate", 50*time.Millisecond, "Publish interval")
	file    = flag.String("file", "", "YAML list of samples to replay")
	radius  = flag.Float64("radius", 0.1, "Circle radius in human meters")
	period  = flag.Duration("period", 4*time.Second, "Time for one circle")
)

// Circle centre in the human frame. Scaled by the default transfer factor
// it lands in front of the robot's right shoulder.
var circleCentre = pose.Point{X: 0.25, Y: 0.15, Z: -0.5}

func main() {
	flag.Parse()

	if envNet := os.Getenv(config.EnvNetwork); envNet != "" {
		*network = envNet
	}
	if envTopic := os.Getenv(config.EnvTopic); envTopic != "" {
		*topic = envTopic
	}
	log.Init(os.Getenv(config.EnvLogLevel))

	var recording []pose.Sample
	if *file != "" {
		var err error
		if recording, err = loadRecording(*file); err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println()
	fmt.Println("✋ Pose publisher")
	fmt.Printf("   Topic: %s on %s\n", *topic, *network)
	if recording != nil {
		fmt.Printf("   Replaying %d samples from %s\n", len(recording), *file)
	} else {
		fmt.Printf("   Circle: radius %.2f m every %v\n", *radius, *period)
	}
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub, err := posebus.Dial(ctx, *network, *topic, *node)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	defer pub.Close()

	ticker := time.NewTicker(*rate)
	defer ticker.Stop()

	start := time.Now()
	var sent int
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n👋 Published %d samples\n", sent)
			return
		case now := <-ticker.C:
			var s pose.Sample
			if recording != nil {
				s = recording[sent%len(recording)]
			} else {
				s = circleSample(now.Sub(start), *radius, *period)
			}
			if err := pub.Publish(s); err != nil {
				log.Error("publish failed", "error", err)
				return
			}
			sent++
			log.Debug("published", "sample", s.String())
		}
	}
}

// circleSample returns the point on the circle at elapsed time t.
func circleSample(t time.Duration, r float64, period time.Duration) pose.Sample {
	phase := 2 * math.Pi * t.Seconds() / period.Seconds()
	return pose.Sample{
		Position: pose.Point{
			X: circleCentre.X + r*math.Cos(phase),
			Y: circleCentre.Y + r*math.Sin(phase),
			Z: circleCentre.Z,
		},
		Orientation: pose.Quaternion{W: 1},
	}
}

func loadRecording(path string) ([]pose.Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	var samples []pose.Sample
	if err := yaml.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("parse recording %s: %w", path, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("recording %s has no samples", path)
	}
	return samples, nil
}
