// Package resourceprobe samples host CPU and memory utilization for the
// agent registry's admission gate and the process supervisor's
// resource-monitoring tick. The spec treats the sampler as an opaque
// collaborator; Probe is the seam tests substitute a deterministic
// implementation through.
package resourceprobe

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Sample is a point-in-time utilization reading, both fields in [0, 1].
type Sample struct {
	CPUUsage    float64
	MemoryUsage float64
}

// Probe samples current resource utilization.
type Probe interface {
	Sample(ctx context.Context) (Sample, error)
}

// HostProbe samples the host's aggregate CPU and memory utilization via
// gopsutil. It is safe for concurrent use.
type HostProbe struct {
	cpuSampleWindow time.Duration
}

// NewHostProbe returns a HostProbe that measures CPU usage over the given
// sampling window. A window of zero uses gopsutil's non-blocking
// since-last-call percentage instead of blocking to sample.
func NewHostProbe(cpuSampleWindow time.Duration) *HostProbe {
	return &HostProbe{cpuSampleWindow: cpuSampleWindow}
}

func (p *HostProbe) Sample(ctx context.Context) (Sample, error) {
	percents, err := cpu.PercentWithContext(ctx, p.cpuSampleWindow, false)
	if err != nil {
		return Sample{}, err
	}
	var cpuUsage float64
	if len(percents) > 0 {
		cpuUsage = percents[0] / 100.0
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Sample{}, err
	}

	return Sample{
		CPUUsage:    clamp01(cpuUsage),
		MemoryUsage: clamp01(vm.UsedPercent / 100.0),
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// StaticProbe returns a fixed Sample on every call. Used in tests and by
// callers that want deterministic admission-gate behavior.
type StaticProbe struct {
	Fixed Sample
}

func (p StaticProbe) Sample(context.Context) (Sample, error) {
	return p.Fixed, nil
}
