// Package gpu probes accelerator availability for health reporting.
package gpu

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// Info is the probed accelerator state.
type Info struct {
	Available bool
	Name      string
}

// Prober reports accelerator state. Injected so tests fake it.
type Prober interface {
	Probe(ctx context.Context) Info
}

// NvidiaSMI probes via the nvidia-smi CLI. Any failure reports no GPU.
type NvidiaSMI struct{}

func (NvidiaSMI) Probe(ctx context.Context) Info {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=name", "--format=csv,noheader").Output()
	if err != nil {
		return Info{}
	}
	name := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if name == "" {
		return Info{}
	}
	return Info{Available: true, Name: name}
}

// Static is a fixed probe result, for tests and CPU-only deployments.
type Static Info

func (s Static) Probe(context.Context) Info { return Info(s) }
