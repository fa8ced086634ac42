package sampler

import (
	"context"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"

	"github.com/vpntrail/vpntrail/internal/logging"
	"github.com/vpntrail/vpntrail/pkg/types"
)

// Config holds sampler configuration.
type Config struct {
	ServerName     string
	ServerLocation string
	DiskPath       string        // mount point to report, default "/"
	CPUInterval    time.Duration // sampling window for the CPU reading
	Logger         *logging.Logger

	// Failures counts failed counter reads, labeled by metric name.
	// Optional; nil disables counting.
	Failures *prometheus.CounterVec
}

// Sampler takes point-in-time snapshots of host resource usage and the
// IPv4 network interfaces. A failure to read one counter leaves that field
// nil and never fails the sample as a whole.
type Sampler struct {
	serverName     string
	serverLocation string
	diskPath       string
	cpuInterval    time.Duration
	logger         *logging.Logger
	failures       *prometheus.CounterVec
}

// New creates a Sampler.
func New(cfg Config) *Sampler {
	if cfg.DiskPath == "" {
		cfg.DiskPath = "/"
	}
	if cfg.CPUInterval <= 0 {
		cfg.CPUInterval = time.Second
	}
	return &Sampler{
		serverName:     cfg.ServerName,
		serverLocation: cfg.ServerLocation,
		diskPath:       cfg.DiskPath,
		cpuInterval:    cfg.CPUInterval,
		logger:         cfg.Logger.WithComponent("sampler"),
		failures:       cfg.Failures,
	}
}

// Sample reads the host counters. The CPU reading blocks for the
// configured sampling window, so a sample takes at least that long.
func (s *Sampler) Sample(ctx context.Context) *types.SystemStats {
	stats := &types.SystemStats{
		Timestamp:      time.Now().UTC(),
		ServerName:     s.serverName,
		ServerLocation: s.serverLocation,
	}

	if pct, err := cpu.PercentWithContext(ctx, s.cpuInterval, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = &pct[0]
	} else {
		s.fail("cpu")
		s.logger.Warn().Err(err).Msg("Failed to read CPU usage")
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryPercent = &vm.UsedPercent
		stats.MemoryAvailable = &vm.Available
	} else {
		s.fail("memory")
		s.logger.Warn().Err(err).Msg("Failed to read memory usage")
	}

	if du, err := disk.UsageWithContext(ctx, s.diskPath); err == nil {
		stats.DiskPercent = &du.UsedPercent
		stats.DiskFree = &du.Free
	} else {
		s.fail("disk")
		s.logger.Warn().Err(err).Str("path", s.diskPath).Msg("Failed to read disk usage")
	}

	stats.Interfaces = s.interfaces(ctx)

	return stats
}

// interfaces enumerates interfaces that carry an IPv4 address.
func (s *Sampler) interfaces(ctx context.Context) map[string]types.InterfaceAddr {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		s.fail("interfaces")
		s.logger.Warn().Err(err).Msg("Failed to enumerate network interfaces")
		return nil
	}

	out := make(map[string]types.InterfaceAddr)
	for _, iface := range ifaces {
		for _, addr := range iface.Addrs {
			ip, ipnet, err := net.ParseCIDR(addr.Addr)
			if err != nil || ip.To4() == nil {
				continue
			}
			out[iface.Name] = types.InterfaceAddr{
				IP:      ip.String(),
				Netmask: net.IP(ipnet.Mask).String(),
			}
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// fail accounts one failed counter read.
func (s *Sampler) fail(metric string) {
	if s.failures != nil {
		s.failures.WithLabelValues(metric).Inc()
	}
}
