package telemetry

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// HostPerformance is the telemetry record's performance{cpu,memory,diskIO,
// networkIO} field, spec §6.
type HostPerformance struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskReadBytes  uint64
	DiskWriteBytes uint64
	NetSentBytes   uint64
	NetRecvBytes   uint64
}

// SampleHost takes one point-in-time host resource reading via gopsutil.
// Disk/network counters are cumulative since boot; callers wanting a rate
// diff successive samples themselves.
func SampleHost(ctx context.Context) (HostPerformance, error) {
	var perf HostPerformance

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return perf, err
	}
	if len(cpuPercents) > 0 {
		perf.CPUPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return perf, err
	}
	perf.MemoryPercent = vm.UsedPercent

	diskCounters, err := disk.IOCountersWithContext(ctx)
	if err == nil {
		for _, c := range diskCounters {
			perf.DiskReadBytes += c.ReadBytes
			perf.DiskWriteBytes += c.WriteBytes
		}
	}

	netCounters, err := net.IOCountersWithContext(ctx, false)
	if err == nil && len(netCounters) > 0 {
		perf.NetSentBytes = netCounters[0].BytesSent
		perf.NetRecvBytes = netCounters[0].BytesRecv
	}

	return perf, nil
}

// Sampler caches the most recent host reading, refreshed on an interval so
// Collector.Snapshot calls never block on a syscall.
type Sampler struct {
	interval time.Duration
	latest   chan HostPerformance
}

// NewSampler starts a background goroutine sampling the host every
// interval. Stop via ctx cancellation.
func NewSampler(ctx context.Context, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s := &Sampler{interval: interval, latest: make(chan HostPerformance, 1)}

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			if perf, err := SampleHost(ctx); err == nil {
				s.publish(perf)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return s
}

func (s *Sampler) publish(perf HostPerformance) {
	select {
	case <-s.latest:
	default:
	}
	s.latest <- perf
}

// Latest returns the most recent sample, or a zero value before the first
// tick completes.
func (s *Sampler) Latest() HostPerformance {
	select {
	case perf := <-s.latest:
		s.latest <- perf
		return perf
	default:
		return HostPerformance{}
	}
}
