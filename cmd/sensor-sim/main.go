package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/resq-app/resq-backend/internal/falldetect"
	"github.com/resq-app/resq-backend/internal/ingest"
	"github.com/resq-app/resq-backend/internal/logging"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
	"github.com/sethvargo/go-signalcontext"
)

func main() {
	brokerAddr := flag.String("broker", "tcp://localhost:1883", "MQTT broker address, e.g. tcp://localhost:1883")
	userID := flag.String("user", "dev-user", "user id the device belongs to")
	deviceID := flag.String("device", "sim-watch-1", "device identifier")
	rate := flag.Duration("rate", 20*time.Millisecond, "interval between samples")
	batch := flag.Int("batch", 10, "samples per published message")
	fallAfter := flag.Duration("fall-after", 5*time.Second, "when to simulate a fall, 0 never")
	lat := flag.Float64("lat", 1.3521, "device latitude")
	lon := flag.Float64("lon", 103.8198, "device longitude")

	flag.Parse()

	ctx, done := signalcontext.OnInterrupt()
	defer done()

	logger := logging.FromContext(ctx).Named("sensor-sim")

	clientID := fmt.Sprintf("%s-simulator-%d", *deviceID, time.Now().UnixNano())
	opts := mqtt.NewClientOptions().AddBroker(*brokerAddr).SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatalf("failed to connect to broker: %v", token.Error())
	}
	logger.Infof("connected to MQTT broker %s as %s", *brokerAddr, clientID)

	topic := ingest.SampleTopic(*userID, *deviceID)
	trace := newTrace(*fallAfter, *rate)

	ticker := time.NewTicker(*rate)
	defer ticker.Stop()

	var pending []v1.SensorSample

	for {
		select {
		case <-ctx.Done():
			logger.Info("received shutdown signal, disconnecting")
			client.Disconnect(250)
			return

		case now := <-ticker.C:
			pending = append(pending, trace.next(now))
			if len(pending) < *batch {
				continue
			}

			data, err := json.Marshal(v1.SensorSamplesRequest{
				DeviceID:  *deviceID,
				Samples:   pending,
				Latitude:  lat,
				Longitude: lon,
			})
			pending = nil
			if err != nil {
				logger.Warnf("failed to encode payload: %v", err)
				continue
			}

			token := client.Publish(topic, 1, false, data)
			token.Wait()
			if err := token.Error(); err != nil {
				logger.Warnf("publish error: %v", err)
			}
		}
	}
}

// trace produces a walking signal around 1 g with one freefall + impact episode.
type trace struct {
	step     int
	fallStep int
}

func newTrace(fallAfter, rate time.Duration) *trace {
	t := &trace{fallStep: -1}
	if fallAfter > 0 {
		t.fallStep = int(fallAfter / rate)
	}
	return t
}

func (t *trace) next(now time.Time) v1.SensorSample {
	defer func() { t.step++ }()

	g := 1 + 0.15*math.Sin(float64(t.step)/5) + (rand.Float64()-0.5)*0.05

	if t.fallStep >= 0 {
		switch d := t.step - t.fallStep; {
		case d >= 0 && d < 15:
			g = 0.2
		case d == 15:
			g = 4.5
		case d > 15 && d < 40:
			g = 1
		}
	}

	return v1.SensorSample{Z: g * falldetect.G, TimestampMs: now.UnixMilli()}
}
