package netprobe

import (
	"context"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

var (
	unixLossRe    = regexp.MustCompile(`(\d+\.?\d*)%\s*(?:packet\s*)?loss`)
	windowsLossRe = regexp.MustCompile(`lost\s*=\s*(\d+)`)
	replyTimeRe   = regexp.MustCompile(`time[=<]\s*([0-9.]+)`)
)

// systemPingStrategy shells out to the platform ping utility and parses its
// textual output. It is the fallback for hosts where raw sockets are not
// available to an unprivileged process.
type systemPingStrategy struct{}

func newSystemPingStrategy() *systemPingStrategy {
	return &systemPingStrategy{}
}

func (*systemPingStrategy) Name() string {
	return "system-ping"
}

func (*systemPingStrategy) Ping(ctx context.Context, host string, packets int) (PingResult, error) {
	// Budget covers the worst case of every packet timing out.
	budget := time.Duration(packets*2+5) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var args []string
	if runtime.GOOS == "windows" {
		args = []string{"-n", strconv.Itoa(packets), "-w", "2000", host}
	} else {
		args = []string{"-c", strconv.Itoa(packets), host}
	}

	cmd := exec.CommandContext(runCtx, "ping", args...)
	out, err := cmd.CombinedOutput()
	if runCtx.Err() != nil {
		// An unresponsive prober likely means a dead link, not a healthy one.
		return PingResult{LossPct: 100}, nil
	}
	if err != nil && len(out) == 0 {
		return PingResult{}, err
	}

	return parsePingOutput(strings.ToLower(string(out)), packets), nil
}

func parsePingOutput(out string, packets int) PingResult {
	times := replyTimeRe.FindAllStringSubmatch(out, -1)
	sum := 0.0
	for _, m := range times {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			sum += v
		}
	}
	avg := 0.0
	if len(times) > 0 {
		avg = sum / float64(len(times))
	}

	if runtime.GOOS == "windows" {
		if m := windowsLossRe.FindStringSubmatch(out); m != nil {
			if lost, err := strconv.Atoi(m[1]); err == nil && packets > 0 {
				return PingResult{LossPct: float64(lost) / float64(packets) * 100, AvgMS: avg}
			}
		}
	} else {
		if m := unixLossRe.FindStringSubmatch(out); m != nil {
			if loss, err := strconv.ParseFloat(m[1], 64); err == nil {
				return PingResult{LossPct: loss, AvgMS: avg}
			}
		}
	}

	// No usable loss figure in the output: infer it from the count of reply
	// lines versus packets sent.
	loss := 0.0
	if packets > 0 {
		loss = float64(packets-len(times)) / float64(packets) * 100
		if loss < 0 {
			loss = 0
		}
	}

	return PingResult{LossPct: loss, AvgMS: avg}
}
