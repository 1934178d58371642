// Package sysinfo collects facts about the host a benchmark runs on.
package sysinfo

import (
	"context"
	"fmt"

	"github.com/docker/go-units"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"
)

// SystemInfo describes the benchmarking host.
type SystemInfo struct {
	Hostname           string  `json:"hostname"`
	OS                 string  `json:"os"`
	Platform           string  `json:"platform"`
	PlatformVersion    string  `json:"platform_version"`
	KernelVersion      string  `json:"kernel_version"`
	Arch               string  `json:"arch"`
	Virtualization     string  `json:"virtualization,omitempty"`
	VirtualizationRole string  `json:"virtualization_role,omitempty"`
	CPUVendor          string  `json:"cpu_vendor"`
	CPUModel           string  `json:"cpu_model"`
	CPUCores           int     `json:"cpu_cores"`
	CPUMhz             float64 `json:"cpu_mhz"`
	MemoryTotalBytes   uint64  `json:"memory_total_bytes"`
}

// Collect gathers host, CPU and memory facts.
func Collect(ctx context.Context) (*SystemInfo, error) {
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading host info: %w", err)
	}

	info := &SystemInfo{
		Hostname:           hi.Hostname,
		OS:                 hi.OS,
		Platform:           hi.Platform,
		PlatformVersion:    hi.PlatformVersion,
		KernelVersion:      hi.KernelVersion,
		Arch:               hi.KernelArch,
		Virtualization:     hi.VirtualizationSystem,
		VirtualizationRole: hi.VirtualizationRole,
	}

	// CPU details are unavailable in some containers; keep what we have.
	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUVendor = cpus[0].VendorID
		info.CPUModel = cpus[0].ModelName
		info.CPUMhz = cpus[0].Mhz
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUCores = cores
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading memory info: %w", err)
	}

	info.MemoryTotalBytes = vm.Total

	return info, nil
}

// Fields returns the info as log fields.
func (i *SystemInfo) Fields() logrus.Fields {
	return logrus.Fields{
		"hostname":  i.Hostname,
		"platform":  fmt.Sprintf("%s %s", i.Platform, i.PlatformVersion),
		"kernel":    i.KernelVersion,
		"arch":      i.Arch,
		"cpu":       i.CPUModel,
		"cpu_cores": i.CPUCores,
		"memory":    units.BytesSize(float64(i.MemoryTotalBytes)),
	}
}

// Log collects system info and logs it. Failures are logged and ignored.
func Log(ctx context.Context, log logrus.FieldLogger) {
	info, err := Collect(ctx)
	if err != nil {
		log.WithError(err).Debug("Failed to collect system info")

		return
	}

	log.WithFields(info.Fields()).Info("System info")
}
