package engine

import (
	"sync/atomic"
	"time"
	"zephyr/internal/calc"
	"zephyr/internal/metrics"
)

type MetricStorage struct {
	Pending atomic.Uint64 // tracked sends awaiting release

	Sent            atomic.Uint64 // notices handed to Send
	Datagrams       atomic.Uint64 // datagrams written, fragments counted separately
	Retransmits     atomic.Uint64
	HostAcks        atomic.Uint64
	ServerAcks      atomic.Uint64
	ServerNaks      atomic.Uint64
	Timeouts        atomic.Uint64
	Unclaimed       atomic.Uint64 // finished sends dropped without an Await
	StrayAcks       atomic.Uint64
	Malformed       atomic.Uint64
	Received        atomic.Uint64
	ClientAcks      atomic.Uint64
	PartialsExpired atomic.Uint64
	AuthYes         atomic.Uint64
	AuthNo          atomic.Uint64
	AuthFailed      atomic.Uint64

	AckLatency *calc.Window[uint64] // send to final acknowledgement, ns
}

const latencySamples int = 256

func (engine *Engine) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()

	add := func(name string, raw uint64, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   engine.Namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value: metrics.MetricValue{
				Raw:      raw,
				Unit:     "count",
				Interval: interval,
			},
		})
	}

	m := engine.Metrics
	add("pending", m.Pending.Load(), metrics.Gauge, "Tracked sends awaiting acknowledgement")
	add("sent", m.Sent.Swap(0), metrics.Counter, "Notices sent in the interval")
	add("datagrams", m.Datagrams.Swap(0), metrics.Counter, "Datagrams written in the interval")
	add("retransmits", m.Retransmits.Swap(0), metrics.Counter, "Datagrams resent after a missed acknowledgement")
	add("host_acks", m.HostAcks.Swap(0), metrics.Counter, "HMACK acknowledgements matched in the interval")
	add("server_acks", m.ServerAcks.Swap(0), metrics.Counter, "SERVACK acknowledgements matched in the interval")
	add("server_naks", m.ServerNaks.Swap(0), metrics.Counter, "SERVNAK rejections matched in the interval")
	add("timeouts", m.Timeouts.Swap(0), metrics.Counter, "Sends reported as timed out in the interval")
	add("unclaimed", m.Unclaimed.Swap(0), metrics.Counter, "Finished sends dropped without being awaited in the interval")
	add("stray_acks", m.StrayAcks.Swap(0), metrics.Counter, "Acknowledgements for unknown uids in the interval")
	add("malformed", m.Malformed.Swap(0), metrics.Counter, "Datagrams dropped as malformed in the interval")
	add("received", m.Received.Swap(0), metrics.Counter, "Notices delivered to the receive queue in the interval")
	add("client_acks", m.ClientAcks.Swap(0), metrics.Counter, "CLIENTACK replies sent in the interval")
	add("partials_expired", m.PartialsExpired.Swap(0), metrics.Counter, "Incomplete fragmented notices discarded in the interval")
	add("auth_yes", m.AuthYes.Swap(0), metrics.Counter, "Received notices with a valid checksum")
	add("auth_no", m.AuthNo.Swap(0), metrics.Counter, "Received notices unauthenticated or with a bad checksum")
	add("auth_failed", m.AuthFailed.Swap(0), metrics.Counter, "Received notices that could not be verified")

	samples := m.AckLatency.Drain()
	if len(samples) > 0 {
		collection = append(collection, metrics.Metric{
			Name:        "ack_latency",
			Description: "Trimmed mean time from send to final acknowledgement",
			Namespace:   engine.Namespace,
			Type:        metrics.Gauge,
			Timestamp:   recordTime,
			Value: metrics.MetricValue{
				Raw:      calc.TrimmedMean(samples, 0.1),
				Unit:     "ns",
				Interval: interval,
			},
		})
	}
	return
}
