package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"modbot/internal/session"
)

var startTime = time.Now()

type sysInfoArgs struct {
	Section string `json:"section,omitempty" jsonschema:"description=One of all os cpu memory disk runtime,default=all"`
}

func systemInfo(ctx context.Context, sc *session.Context, args sysInfoArgs) (string, error) {
	sections := map[string]func(context.Context) []string{
		"os":      osSection,
		"cpu":     cpuSection,
		"memory":  memorySection,
		"disk":    diskSection,
		"runtime": runtimeSection,
	}
	order := []string{"os", "cpu", "memory", "disk", "runtime"}
	titles := map[string]string{"os": "System", "cpu": "CPU", "memory": "Memory (RAM)", "disk": "Disk", "runtime": "Runtime"}

	want := strings.ToLower(strings.TrimSpace(args.Section))
	if want != "" && want != "all" {
		fn, ok := sections[want]
		if !ok {
			return "", fmt.Errorf("unknown section %q", args.Section)
		}
		order = []string{want}
		sections = map[string]func(context.Context) []string{want: fn}
	}

	var info []string
	for _, name := range order {
		if len(info) > 0 {
			info = append(info, "")
		}
		info = append(info, "=== "+titles[name]+" ===")
		info = append(info, sections[name](ctx)...)
	}
	return strings.Join(info, "\n"), nil
}

func osSection(ctx context.Context) []string {
	hostname, _ := os.Hostname()
	lines := []string{
		fmt.Sprintf("Hostname: %s", hostname),
		fmt.Sprintf("OS: %s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if v := osVersion(ctx); v != "" {
		lines = append(lines, fmt.Sprintf("OS Version: %s", v))
	}
	if up := runCmd(ctx, "uptime"); up != "" {
		lines = append(lines, fmt.Sprintf("System Uptime: %s", up))
	}
	return lines
}

func cpuSection(ctx context.Context) []string {
	var lines []string
	if name := cpuName(ctx); name != "" {
		lines = append(lines, fmt.Sprintf("Model: %s", name))
	}
	return append(lines, fmt.Sprintf("Logical Cores: %d", runtime.NumCPU()))
}

func memorySection(ctx context.Context) []string {
	if runtime.GOOS == "linux" {
		if lines := linuxMemInfo(); len(lines) > 0 {
			return lines
		}
	}
	if runtime.GOOS == "darwin" {
		if total := runCmd(ctx, "sysctl", "-n", "hw.memsize"); total != "" {
			var b float64
			fmt.Sscanf(total, "%f", &b)
			return []string{fmt.Sprintf("Total: %.0f GB", b/(1<<30))}
		}
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return []string{
		fmt.Sprintf("Process Alloc: %.1f MB", float64(mem.Alloc)/(1<<20)),
		fmt.Sprintf("Process Sys: %.1f MB", float64(mem.Sys)/(1<<20)),
	}
}

func diskSection(ctx context.Context) []string {
	out := runCmd(ctx, "df", "-h", "/")
	if out == "" {
		return []string{"Not available"}
	}
	lines := strings.Split(out, "\n")
	if len(lines) > 2 {
		lines = lines[:2]
	}
	return lines
}

func runtimeSection(ctx context.Context) []string {
	cwd, _ := os.Getwd()
	return []string{
		fmt.Sprintf("Working Dir: %s", cwd),
		fmt.Sprintf("Go: %s", runtime.Version()),
		fmt.Sprintf("Goroutines: %d", runtime.NumGoroutine()),
		fmt.Sprintf("Time: %s", time.Now().Format(time.RFC3339)),
		fmt.Sprintf("Uptime: %.0f seconds", time.Since(startTime).Seconds()),
	}
}

func runCmd(ctx context.Context, name string, args ...string) string {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return ""
	}
	return strings.TrimSpace(out.String())
}

func osVersion(ctx context.Context) string {
	switch runtime.GOOS {
	case "darwin":
		name := runCmd(ctx, "sw_vers", "-productName")
		ver := runCmd(ctx, "sw_vers", "-productVersion")
		return strings.TrimSpace(name + " " + ver)
	case "linux":
		if data, err := os.ReadFile("/etc/os-release"); err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				if strings.HasPrefix(line, "PRETTY_NAME=") {
					return strings.Trim(strings.TrimPrefix(line, "PRETTY_NAME="), "\"")
				}
			}
		}
		return runCmd(ctx, "uname", "-r")
	}
	return ""
}

func cpuName(ctx context.Context) string {
	switch runtime.GOOS {
	case "darwin":
		return runCmd(ctx, "sysctl", "-n", "machdep.cpu.brand_string")
	case "linux":
		data, err := os.ReadFile("/proc/cpuinfo")
		if err != nil {
			return ""
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "model name") {
				if _, v, ok := strings.Cut(line, ":"); ok {
					return strings.TrimSpace(v)
				}
			}
		}
	}
	return ""
}

func linuxMemInfo() []string {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return nil
	}
	var total, available float64
	for _, line := range strings.Split(string(data), "\n") {
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			fmt.Sscanf(line, "MemTotal: %f kB", &total)
		case strings.HasPrefix(line, "MemAvailable:"):
			fmt.Sscanf(line, "MemAvailable: %f kB", &available)
		}
	}
	if total == 0 {
		return nil
	}
	lines := []string{fmt.Sprintf("Total: %.1f GB", total/(1<<20))}
	if available > 0 {
		lines = append(lines,
			fmt.Sprintf("Used: %.1f GB", (total-available)/(1<<20)),
			fmt.Sprintf("Available: %.1f GB", available/(1<<20)),
		)
	}
	return lines
}
