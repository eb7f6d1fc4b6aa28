package hostinfo

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Profile describes the host for release selection. OS and Arch use the
// release naming tokens ("macos"/"linux", "aarch64"/"x86_64"); the remaining
// fields feed the richer resolver variant that posts the full profile.
type Profile struct {
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	Kernel        string `json:"kernel,omitempty"`
	CPUModel      string `json:"cpu_model,omitempty"`
	Cores         int    `json:"cores,omitempty"`
	MemoryBytes   uint64 `json:"memory_bytes,omitempty"`
	DiskFreeBytes uint64 `json:"disk_free_bytes,omitempty"`
}

// DescribeHost collects the host profile. OS and arch always resolve from
// the runtime; the deeper hardware facts are best-effort and left zero when
// probing fails, so a degraded probe never blocks release resolution.
func DescribeHost(dataDir string) Profile {
	p := Profile{
		OS:   normalizeOS(runtime.GOOS),
		Arch: normalizeArch(runtime.GOARCH),
	}

	if hi, err := host.Info(); err == nil {
		p.Kernel = hi.KernelVersion
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		p.CPUModel = infos[0].ModelName
	}
	if n, err := cpu.Counts(true); err == nil {
		p.Cores = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		p.MemoryBytes = vm.Total
	}
	if dataDir != "" {
		if du, err := disk.Usage(dataDir); err == nil {
			p.DiskFreeBytes = du.Free
		}
	}
	return p
}

func normalizeOS(goos string) string {
	if goos == "darwin" {
		return "macos"
	}
	return "linux"
}

func normalizeArch(goarch string) string {
	if goarch == "arm64" || goarch == "aarch64" {
		return "aarch64"
	}
	return "x86_64"
}
