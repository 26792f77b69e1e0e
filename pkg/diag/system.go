// system.go captures host and runtime facts for reports and exports.

package diag

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// HostInfo overrides environment facts the runtime cannot discover itself,
// such as the screen of an attached display. Empty fields fall back to
// detected values.
type HostInfo struct {
	UserAgent        string
	Platform         string
	Language         string
	ScreenResolution string
}

// StorageArea is a key/value store whose footprint is reported in SystemInfo.
type StorageArea interface {
	// Range calls fn for each key and value until fn returns false.
	Range(fn func(key, value string) bool)
}

// MapStorage is a StorageArea backed by a map.
type MapStorage map[string]string

func (m MapStorage) Range(fn func(key, value string) bool) {
	for k, v := range m {
		if !fn(k, v) {
			return
		}
	}
}

// SystemInfoProvider builds SystemInfo snapshots. Every call reads the
// environment afresh; nothing is cached.
type SystemInfoProvider struct {
	appName    string
	appVersion string
	host       HostInfo
	local      StorageArea
	session    StorageArea
	startTime  time.Time
	now        func() time.Time
}

// NewSystemInfoProvider creates a provider. startTime is used for uptime.
func NewSystemInfoProvider(appName, appVersion string, hostInfo HostInfo, local, session StorageArea, startTime time.Time, now func() time.Time) *SystemInfoProvider {
	if now == nil {
		now = time.Now
	}
	return &SystemInfoProvider{
		appName:    appName,
		appVersion: appVersion,
		host:       hostInfo,
		local:      local,
		session:    session,
		startTime:  startTime,
		now:        now,
	}
}

// GetSystemInfo returns a fresh snapshot.
func (p *SystemInfoProvider) GetSystemInfo() SystemInfo {
	hostname, _ := os.Hostname() // empty hostname is acceptable

	uptimeMs := p.now().Sub(p.startTime).Milliseconds()
	if uptimeMs < 0 {
		uptimeMs = 0
	}

	return SystemInfo{
		AppVersion:       p.appVersion,
		UserAgent:        p.userAgent(),
		Platform:         p.platform(),
		Language:         p.language(),
		ScreenResolution: p.host.ScreenResolution,
		TimeZone:         timeZone(p.now()),
		StorageUsage: StorageUsage{
			Local:   EstimateStorage(p.local),
			Session: EstimateStorage(p.session),
		},
		MemoryUsage:  captureMemory(),
		GoVersion:    runtime.Version(),
		Hostname:     hostname,
		NumGoroutine: runtime.NumGoroutine(),
		UptimeMs:     uptimeMs,
	}
}

func (p *SystemInfoProvider) userAgent() string {
	if p.host.UserAgent != "" {
		return p.host.UserAgent
	}
	name := p.appName
	if name == "" {
		name = "diag"
	}
	version := p.appVersion
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("%s/%s (%s; %s) %s", name, version, runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func (p *SystemInfoProvider) platform() string {
	if p.host.Platform != "" {
		return p.host.Platform
	}
	fallback := runtime.GOOS + "/" + runtime.GOARCH
	info, err := host.Info()
	if err != nil || info.Platform == "" {
		return fallback
	}
	parts := []string{info.OS, info.Platform}
	if info.PlatformVersion != "" {
		parts = append(parts, info.PlatformVersion)
	}
	return strings.Join(parts, " ") + " " + runtime.GOARCH
}

func (p *SystemInfoProvider) language() string {
	if p.host.Language != "" {
		return p.host.Language
	}
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			// en_US.UTF-8 -> en-US
			if i := strings.IndexAny(v, ".@"); i >= 0 {
				v = v[:i]
			}
			if v == "C" || v == "POSIX" {
				continue
			}
			return strings.ReplaceAll(v, "_", "-")
		}
	}
	return ""
}

func timeZone(now time.Time) string {
	if name := now.Location().String(); name != "" && name != "Local" {
		return name
	}
	if tz := os.Getenv("TZ"); tz != "" {
		return tz
	}
	name, _ := now.Zone()
	return name
}

// EstimateStorage sums key and value lengths across a storage area and
// doubles the result to approximate a two-byte-per-character encoding.
// A nil area counts as empty.
func EstimateStorage(area StorageArea) int {
	if area == nil {
		return 0
	}
	total := 0
	area.Range(func(key, value string) bool {
		total += utf8.RuneCountInString(key) + utf8.RuneCountInString(value)
		return true
	})
	return total * 2
}

func captureMemory() *MemoryUsage {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	usage := &MemoryUsage{
		UsedHeap:  memStats.HeapAlloc,
		TotalHeap: memStats.HeapSys,
	}

	// a negative input reads the limit without changing it
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit != math.MaxInt64 {
		usage.HeapLimit = uint64(limit)
	} else if vm, err := mem.VirtualMemory(); err == nil {
		usage.HeapLimit = vm.Total
	}
	return usage
}
