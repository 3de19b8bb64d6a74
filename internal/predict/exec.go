package predict

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/robertftenbosch/tenbio/internal/catalog"
	"github.com/robertftenbosch/tenbio/internal/residency"
)

// CommandPredictor shells out to the inference runner CLI. The runner is
// expected to read input.json from the output dir and write its structure
// files and confidence summaries there.
type CommandPredictor struct {
	// Command is the runner executable, e.g. "protenix-runner".
	Command string
	// BaseArgs precede the per-job flags.
	BaseArgs []string
	Logger   *slog.Logger
}

func NewCommandPredictor(command string, baseArgs []string, logger *slog.Logger) *CommandPredictor {
	return &CommandPredictor{Command: command, BaseArgs: baseArgs, Logger: logger}
}

func (p *CommandPredictor) Predict(ctx context.Context, in Input) (Artifact, error) {
	inputPath, err := WriteRunnerInput(in)
	if err != nil {
		return Artifact{}, err
	}

	seeds := make([]string, 0, in.NumSeeds)
	for _, s := range Seeds(in.NumSeeds) {
		seeds = append(seeds, strconv.Itoa(s))
	}
	nSamples := in.NumSamples
	if nSamples < 1 {
		nSamples = 1
	}

	args := append([]string{}, p.BaseArgs...)
	args = append(args,
		"--model", in.Model.Name,
		"--input", inputPath,
		"--dump-dir", in.OutputDir,
		"--seeds", strings.Join(seeds, ","),
		"--n-sample", strconv.Itoa(nSamples),
	)
	if in.Entry.NStep > 0 {
		args = append(args, "--n-step", strconv.Itoa(in.Entry.NStep))
	}
	if in.Entry.NCycle > 0 {
		args = append(args, "--n-cycle", strconv.Itoa(in.Entry.NCycle))
	}

	cmd := exec.CommandContext(ctx, p.Command, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	p.Logger.Info("running inference", "job_id", in.JobID, "model", in.Model.Name, "command", p.Command)
	if err := cmd.Run(); err != nil {
		tail := out.String()
		if len(tail) > 2048 {
			tail = tail[len(tail)-2048:]
		}
		return Artifact{}, fmt.Errorf("runner failed: %w: %s", err, strings.TrimSpace(tail))
	}

	structurePath := FindStructureFile(in.OutputDir)
	if structurePath == "" {
		return Artifact{}, errors.New("runner produced no structure file")
	}
	return Artifact{
		StructurePath: structurePath,
		Confidence:    ParseConfidence(in.OutputDir, p.Logger),
	}, nil
}

// CommandLoader implements residency.Loader by invoking the runner's
// load/unload subcommands, which pin model weights in accelerator memory for
// subsequent predict calls.
type CommandLoader struct {
	Command string
	Logger  *slog.Logger
}

func NewCommandLoader(command string, logger *slog.Logger) *CommandLoader {
	return &CommandLoader{Command: command, Logger: logger}
}

func (l *CommandLoader) Load(ctx context.Context, entry catalog.Entry) (any, error) {
	cmd := exec.CommandContext(ctx, l.Command, "load", "--model", entry.Name)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("runner load: %w: %s", err, strings.TrimSpace(out.String()))
	}
	return entry.Name, nil
}

func (l *CommandLoader) Unload(ctx context.Context, m *residency.Model) error {
	cmd := exec.CommandContext(ctx, l.Command, "unload", "--model", m.Name)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("runner unload: %w: %s", err, strings.TrimSpace(out.String()))
	}
	return nil
}
