// Package stats turns raw check records and server-precomputed buckets into
// chart-ready series and rollups. Everything here is pure and synchronous:
// slices in, values out, no shared state. Telemetry is noisy and partial, so
// nothing in this package fails: a malformed or missing sample degrades to
// nil / excluded, never to a panic.
package stats

import (
	"math"

	"github.com/watchboard/watchboard/internal/domain"
)

// DefaultMaxPoints bounds a downsampled chart series.
const DefaultMaxPoints = 3000

// Sample extracts one numeric field from a record. ok is false when the
// field is absent or non-finite; such records carry no sample for the field
// and are never coerced to zero.
type Sample func(domain.CheckRecord) (float64, bool)

func Latency(r domain.CheckRecord) (float64, bool) { return finite(r.LatencyMS) }

func Ping(r domain.CheckRecord) (float64, bool) { return finite(r.PingMS) }

func SSLDays(r domain.CheckRecord) (float64, bool) {
	if r.SSLDaysLeft == nil {
		return 0, false
	}
	return float64(*r.SSLDaysLeft), true
}

func RedirectCount(r domain.CheckRecord) (float64, bool) {
	if r.Redirects == nil {
		return 0, false
	}
	return float64(*r.Redirects), true
}

func finite(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0, false
	}
	return *p, true
}

// Average returns the mean of all present, finite samples of f rounded to
// the nearest integer, or nil when there are no samples.
func Average(records []domain.CheckRecord, f Sample) *int {
	var sum float64
	n := 0
	for _, r := range records {
		if v, ok := f(r); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	v := int(math.Round(sum / float64(n)))
	return &v
}

// Uptime returns the percentage of records with a present HTTP status below
// 400, rounded to the nearest integer, over all records. Records without a
// status stay in the denominator. Nil for empty input.
func Uptime(records []domain.CheckRecord) *int {
	if len(records) == 0 {
		return nil
	}
	up := 0
	for _, r := range records {
		if r.HTTPStatus != nil && *r.HTTPStatus < 400 {
			up++
		}
	}
	v := int(math.Round(float64(up) / float64(len(records)) * 100))
	return &v
}

// MinSSLDaysLeft returns the smallest present sslDaysLeft value (may be
// negative for an expired cert), or nil when no record carries one.
func MinSSLDaysLeft(records []domain.CheckRecord) *int {
	var min *int
	for _, r := range records {
		if r.SSLDaysLeft == nil {
			continue
		}
		if min == nil || *r.SSLDaysLeft < *min {
			v := *r.SSLDaysLeft
			min = &v
		}
	}
	return min
}

// DNSSuccessRate returns the percentage of records whose dnsResolved flag is
// truthy over all records, one decimal place. A record without the flag
// counts as a failure. Nil for empty input.
func DNSSuccessRate(records []domain.CheckRecord) *float64 {
	if len(records) == 0 {
		return nil
	}
	ok := 0
	for _, r := range records {
		if r.DNSResolved.True() {
			ok++
		}
	}
	v := math.Round(float64(ok)/float64(len(records))*1000) / 10
	return &v
}

// classify folds a record's traffic light into the three known states.
// Anything unreadable counts as orange so the counts always sum to the
// record count.
func classify(l domain.TrafficLight) domain.TrafficLight {
	switch l {
	case domain.LightGreen, domain.LightRed:
		return l
	default:
		return domain.LightOrange
	}
}

// TrafficLightCounts tallies records per light; the three counts sum to
// len(records).
func TrafficLightCounts(records []domain.CheckRecord) domain.TrafficLightCounts {
	var c domain.TrafficLightCounts
	for _, r := range records {
		switch classify(r.TrafficLight) {
		case domain.LightGreen:
			c.Green++
		case domain.LightRed:
			c.Red++
		default:
			c.Orange++
		}
	}
	return c
}

// IncidentCount counts records classified orange or red.
func IncidentCount(records []domain.CheckRecord) int {
	n := 0
	for _, r := range records {
		if classify(r.TrafficLight) != domain.LightGreen {
			n++
		}
	}
	return n
}

// Sparkline maps each record with a present sample of f to a point at the
// record's own timestamp. Input order is preserved; nothing is resampled.
func Sparkline(records []domain.CheckRecord, f Sample) []domain.SeriesPoint {
	out := make([]domain.SeriesPoint, 0, len(records))
	for _, r := range records {
		if v, ok := f(r); ok {
			out = append(out, domain.SeriesPoint{TS: r.Timestamp.UnixMilli(), Value: v})
		}
	}
	return out
}

// BucketedTimeseries downsamples records to at most maxPoints chart points.
// Records without a sample for f are dropped first; the remaining N are
// split into consecutive groups of ceil(N/maxPoints). Each group becomes one
// point: the group mean rounded to two decimals, stamped with the timestamp
// of the group's last record. Groups follow input order, so the series is
// monotonic in input order but not fixed-width. A single O(N) pass with no
// wall-clock bucket boundaries.
func BucketedTimeseries(records []domain.CheckRecord, f Sample, maxPoints int) []domain.SeriesPoint {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	type sample struct {
		ts int64
		v  float64
	}
	valid := make([]sample, 0, len(records))
	for _, r := range records {
		if v, ok := f(r); ok {
			valid = append(valid, sample{ts: r.Timestamp.UnixMilli(), v: v})
		}
	}
	n := len(valid)
	if n == 0 {
		return nil
	}
	size := (n + maxPoints - 1) / maxPoints
	if size < 1 {
		size = 1
	}
	out := make([]domain.SeriesPoint, 0, (n+size-1)/size)
	for i := 0; i < n; i += size {
		end := i + size
		if end > n {
			end = n
		}
		var sum float64
		for _, s := range valid[i:end] {
			sum += s.v
		}
		out = append(out, domain.SeriesPoint{
			TS:    valid[end-1].ts,
			Value: round2(sum / float64(end-i)),
		})
	}
	return out
}

// BucketField extracts one averaged metric from a bucket; nil means the
// bucket has no value for it.
type BucketField func(domain.AggregatedBucket) *float64

func BucketLatency(b domain.AggregatedBucket) *float64 { return b.LatencyAvg }

func BucketPing(b domain.AggregatedBucket) *float64 { return b.PingAvg }

func BucketSSLDays(b domain.AggregatedBucket) *float64 { return b.SSLDaysLeftAvg }

func BucketDNSRate(b domain.AggregatedBucket) *float64 { return b.DNSSuccessRate }

// AggregatedSeries maps each bucket with a present value of f to a point at
// the bucket's own timestamp. Buckets are assumed pre-sized by the caller's
// group_by request; no further downsampling happens here.
func AggregatedSeries(buckets []domain.AggregatedBucket, f BucketField) []domain.SeriesPoint {
	out := make([]domain.SeriesPoint, 0, len(buckets))
	for _, b := range buckets {
		p := f(b)
		if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
			continue
		}
		out = append(out, domain.SeriesPoint{TS: b.Timestamp.UnixMilli(), Value: *p})
	}
	return out
}

// MergeTrafficLight sums traffic-light counts element-wise across buckets.
func MergeTrafficLight(buckets []domain.AggregatedBucket) domain.TrafficLightCounts {
	var c domain.TrafficLightCounts
	for _, b := range buckets {
		c = c.Add(b.TrafficLight)
	}
	return c
}

// Summarize merges buckets into one count-weighted rollup: each metric is
// sum(metric*count)/totalCount, rounded to two decimals. A nil metric on a
// non-empty bucket contributes 0 while its count stays in the denominator,
// matching the backend's own rollup arithmetic. Zero total count yields
// all-nil metrics and zero light counts.
func Summarize(buckets []domain.AggregatedBucket) domain.AggregatedSummary {
	total := 0
	for _, b := range buckets {
		if b.Count > 0 {
			total += b.Count
		}
	}
	if total == 0 {
		return domain.AggregatedSummary{}
	}
	weighted := func(f BucketField) *float64 {
		var sum float64
		for _, b := range buckets {
			if b.Count <= 0 {
				continue
			}
			if p := f(b); p != nil && !math.IsNaN(*p) && !math.IsInf(*p, 0) {
				sum += *p * float64(b.Count)
			}
		}
		v := round2(sum / float64(total))
		return &v
	}
	return domain.AggregatedSummary{
		LatencyAvg:     weighted(BucketLatency),
		PingAvg:        weighted(BucketPing),
		SSLDaysLeftAvg: weighted(BucketSSLDays),
		DNSSuccessRate: weighted(BucketDNSRate),
		TrafficLight:   MergeTrafficLight(buckets),
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
