package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"time"
)

type TrafficLight string

const (
	LightGreen  TrafficLight = "green"
	LightOrange TrafficLight = "orange"
	LightRed    TrafficLight = "red"
)

// Flag is a tri-state boolean for fields the backend emits either as JSON
// true/false or as 0/1. Absent, null and unreadable values all leave Set false.
type Flag struct {
	Set bool
	Val bool
}

func (f *Flag) UnmarshalJSON(b []byte) error {
	s := bytes.TrimSpace(b)
	switch {
	case bytes.Equal(s, []byte("null")):
		*f = Flag{}
		return nil
	case bytes.Equal(s, []byte("true")):
		*f = Flag{Set: true, Val: true}
		return nil
	case bytes.Equal(s, []byte("false")):
		*f = Flag{Set: true}
		return nil
	}
	var n float64
	if err := json.Unmarshal(s, &n); err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		// telemetry is noisy; unreadable means "no sample", not an error
		*f = Flag{}
		return nil
	}
	*f = Flag{Set: true, Val: n == 1}
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Val)
}

// True reports whether the flag is present and truthy.
func (f Flag) True() bool { return f.Set && f.Val }

// CheckRecord is one health-check observation as delivered by GET /logs.
type CheckRecord struct {
	Timestamp    time.Time    `json:"timestamp"`
	TrafficLight TrafficLight `json:"trafficLight"`
	HTTPStatus   *int         `json:"httpStatus"`  // pointer to allow nil
	LatencyMS    *float64     `json:"latencyMs"`   // pointer to allow nil
	PingMS       *float64     `json:"pingMs"`      // pointer to allow nil
	SSLDaysLeft  *int         `json:"sslDaysLeft"` // may be negative (expired cert)
	DNSResolved  Flag         `json:"dnsResolved"`
	Redirects    *int         `json:"redirects"`
	URL          string       `json:"url,omitempty"`
}

type TrafficLightCounts struct {
	Green  int `json:"green"`
	Orange int `json:"orange"`
	Red    int `json:"red"`
}

func (c TrafficLightCounts) Total() int { return c.Green + c.Orange + c.Red }

func (c TrafficLightCounts) Add(o TrafficLightCounts) TrafficLightCounts {
	return TrafficLightCounts{
		Green:  c.Green + o.Green,
		Orange: c.Orange + o.Orange,
		Red:    c.Red + o.Red,
	}
}

// AggregatedBucket is a server-precomputed rollup for one time bucket
// (GET /logs/aggregated, group_by granularity).
type AggregatedBucket struct {
	Timestamp      time.Time          `json:"timestamp"`
	Count          int                `json:"count"`
	LatencyAvg     *float64           `json:"latencyAvg"`
	PingAvg        *float64           `json:"pingAvg"`
	SSLDaysLeftAvg *float64           `json:"sslDaysLeftAvg"`
	DNSSuccessRate *float64           `json:"dnsSuccessRate"`
	TrafficLight   TrafficLightCounts `json:"trafficLight"`
}

// Sanitize enforces the bucket invariants after decoding: an empty bucket
// carries no averages, and non-finite averages count as absent.
func (b *AggregatedBucket) Sanitize() {
	if b.Count <= 0 {
		b.Count = 0
		b.LatencyAvg = nil
		b.PingAvg = nil
		b.SSLDaysLeftAvg = nil
		b.DNSSuccessRate = nil
		return
	}
	for _, p := range []**float64{&b.LatencyAvg, &b.PingAvg, &b.SSLDaysLeftAvg, &b.DNSSuccessRate} {
		if *p != nil && (math.IsNaN(**p) || math.IsInf(**p, 0)) {
			*p = nil
		}
	}
}

// AggregatedSummary is a single rollup over one or more buckets.
type AggregatedSummary struct {
	LatencyAvg     *float64           `json:"latencyAvg"`
	PingAvg        *float64           `json:"pingAvg"`
	SSLDaysLeftAvg *float64           `json:"sslDaysLeftAvg"`
	DNSSuccessRate *float64           `json:"dnsSuccessRate"`
	TrafficLight   TrafficLightCounts `json:"trafficLight"`
}

// SeriesPoint is one chart point; TS is unix milliseconds.
type SeriesPoint struct {
	TS    int64   `json:"ts"`
	Value float64 `json:"value"`
}
