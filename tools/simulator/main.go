package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	"telemetry-cloud/internal/auth"
)

type device struct {
	ID       string
	Location string
}

type metricSpec struct {
	Name      string
	BaseValue float64
	Variation float64
	Unit      string
}

var devices = []device{
	{ID: "sensor-alpha-001", Location: "Warehouse A"},
	{ID: "sensor-beta-002", Location: "Factory Floor"},
	{ID: "sensor-gamma-003", Location: "Office Building"},
	{ID: "sensor-delta-004", Location: "Data Center"},
}

var metricCatalogue = []metricSpec{
	{Name: "temperature", BaseValue: 25.0, Variation: 5.0, Unit: "Celsius"},
	{Name: "humidity", BaseValue: 60.0, Variation: 10.0, Unit: "Percentage"},
	{Name: "cpu_usage", BaseValue: 40.0, Variation: 20.0, Unit: "Percentage"},
	{Name: "pressure", BaseValue: 1012.0, Variation: 5.0, Unit: "hPa"},
	{Name: "battery_level", BaseValue: 90.0, Variation: 5.0, Unit: "Percentage"},
}

type payload struct {
	Timestamp   string  `json:"timestamp"`
	DeviceID    string  `json:"device_id"`
	MetricName  string  `json:"metric_name"`
	MetricValue float64 `json:"metric_value"`
	Unit        string  `json:"unit"`
}

func main() {
	baseURL := flag.String("base-url", "http://127.0.0.1:8080", "service base URL")
	interval := flag.Duration("interval", 2*time.Second, "delay between readings")
	count := flag.Int("count", 0, "number of readings to send (0 = run forever)")
	spikeEvery := flag.Int("spike-every", 25, "inject an outlier every N readings (0 = never)")
	spikeFactor := flag.Float64("spike-factor", 4.0, "outlier magnitude as a multiple of base value")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	secret := os.Getenv("INGEST_HMAC_SECRET")
	if secret == "" {
		log.Fatal("INGEST_HMAC_SECRET is required")
	}

	rng := rand.New(rand.NewSource(*seed))
	client := &http.Client{Timeout: 10 * time.Second}
	endpoint := *baseURL + "/ingest/telemetry"

	log.Printf("sending telemetry to %s every %s", endpoint, *interval)

	sent := 0
	for {
		dev := devices[rng.Intn(len(devices))]
		spec := metricCatalogue[rng.Intn(len(metricCatalogue))]

		value := spec.BaseValue + rng.Float64()*spec.Variation - spec.Variation/2
		spiked := *spikeEvery > 0 && sent > 0 && sent%*spikeEvery == 0
		if spiked {
			value = spec.BaseValue * *spikeFactor
		}

		p := payload{
			Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
			DeviceID:    dev.ID,
			MetricName:  spec.Name,
			MetricValue: round2(value),
			Unit:        spec.Unit,
		}
		if err := send(client, endpoint, []byte(secret), p); err != nil {
			log.Printf("send error: %v", err)
		} else {
			label := ""
			if spiked {
				label = " [spike]"
			}
			log.Printf("sent %s %s=%.2f %s%s", p.DeviceID, p.MetricName, p.MetricValue, p.Unit, label)
		}

		sent++
		if *count > 0 && sent >= *count {
			return
		}
		time.Sleep(*interval)
	}
}

func send(client *http.Client, endpoint string, secret []byte, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ingest-Timestamp", timestamp)
	req.Header.Set("X-Ingest-Signature", auth.ComputeIngestSignature(secret, timestamp, body))

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
