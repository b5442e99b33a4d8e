package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/streamwatch/streamwatch/internal/httpclient"
)

// SystemHandler handles the service-level health endpoint.
type SystemHandler struct {
	version   string
	startTime time.Time
	client    *httpclient.Client
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(version string, client *httpclient.Client) *SystemHandler {
	return &SystemHandler{
		version:   version,
		startTime: time.Now().UTC(),
		client:    client,
	}
}

// CPUInfo reports load averages relative to core count.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo reports system and process memory usage in MB.
type MemoryInfo struct {
	TotalMB        float64 `json:"total_mb"`
	UsedMB         float64 `json:"used_mb"`
	AvailableMB    float64 `json:"available_mb"`
	ProcessRSSMB   float64 `json:"process_rss_mb"`
	ProcessPercent float64 `json:"process_percent"`
}

// SystemHealthResponse is the liveness report.
type SystemHealthResponse struct {
	Status        string     `json:"status"`
	Timestamp     string     `json:"timestamp"`
	Version       string     `json:"version"`
	Uptime        string     `json:"uptime"`
	UptimeSeconds float64    `json:"uptime_seconds"`
	CPU           CPUInfo    `json:"cpu"`
	Memory        MemoryInfo `json:"memory"`
	UpstreamState string     `json:"upstream_circuit_state,omitempty"`
}

// SystemHealthInput is the input for the health endpoint.
type SystemHealthInput struct{}

// SystemHealthOutput is the output for the health endpoint.
type SystemHealthOutput struct {
	Body SystemHealthResponse
}

// Register registers the system routes with the API.
func (h *SystemHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Service liveness and system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the service liveness report.
func (h *SystemHandler) GetHealth(ctx context.Context, input *SystemHealthInput) (*SystemHealthOutput, error) {
	now := time.Now().UTC()
	uptime := now.Sub(h.startTime)

	resp := SystemHealthResponse{
		Status:        "healthy",
		Timestamp:     now.Format(time.RFC3339),
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		CPU:           h.cpuInfo(),
		Memory:        h.memoryInfo(),
	}
	if h.client != nil {
		resp.UpstreamState = h.client.CircuitState().String()
	}

	return &SystemHealthOutput{Body: resp}, nil
}

func (h *SystemHandler) cpuInfo() CPUInfo {
	info := CPUInfo{Cores: runtime.NumCPU()}

	loadAvg, err := load.Avg()
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
		if info.Cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(info.Cores)) * 100
		}
	}

	return info
}

func (h *SystemHandler) memoryInfo() MemoryInfo {
	info := MemoryInfo{}

	vmStat, err := mem.VirtualMemory()
	if err == nil && vmStat != nil {
		info.TotalMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMB = float64(vmStat.Used) / 1024 / 1024
		info.AvailableMB = float64(vmStat.Available) / 1024 / 1024
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}
	memInfo, err := proc.MemoryInfo()
	if err == nil && memInfo != nil {
		info.ProcessRSSMB = float64(memInfo.RSS) / 1024 / 1024
		if info.TotalMB > 0 {
			info.ProcessPercent = info.ProcessRSSMB / info.TotalMB * 100
		}
	}

	return info
}
