// Package predict is the seam between the scheduler and the opaque model
// runtime. Production implementations shell out to the inference runner;
// tests plug in deterministic fakes.
package predict

import (
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/robertftenbosch/tenbio/internal/catalog"
	"github.com/robertftenbosch/tenbio/internal/residency"
	"github.com/robertftenbosch/tenbio/pkg/structapi"
)

// Input is a validated prediction handed to a Predictor. Chains have already
// passed the backend's chain policy.
type Input struct {
	JobID      string
	Name       string
	Chains     []structapi.ChainInput
	Model      *residency.Model
	Entry      catalog.Entry
	NumSeeds   int
	NumSamples int
	OutputDir  string
}

// Artifact references the structure file a completed prediction produced.
type Artifact struct {
	StructurePath string
	Confidence    *structapi.ConfidenceScores
}

// Predictor runs one prediction into Input.OutputDir. Implementations must be
// safe to call sequentially from a single worker; they are never called
// concurrently on one backend.
type Predictor interface {
	Predict(ctx context.Context, in Input) (Artifact, error)
}

// FindStructureFile locates the best structure file under dir: the
// lexicographically first *.cif whose name contains "rank", else any *.cif,
// else any *.pdb. Empty string when nothing was produced.
func FindStructureFile(dir string) string {
	var cifs, ranked, pdbs []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		switch {
		case strings.HasSuffix(d.Name(), ".cif"):
			cifs = append(cifs, path)
			if strings.Contains(d.Name(), "rank") {
				ranked = append(ranked, path)
			}
		case strings.HasSuffix(d.Name(), ".pdb"):
			pdbs = append(pdbs, path)
		}
		return nil
	})
	if len(ranked) > 0 {
		sort.Strings(ranked)
		return ranked[0]
	}
	if len(cifs) > 0 {
		sort.Strings(cifs)
		return cifs[0]
	}
	if len(pdbs) > 0 {
		sort.Strings(pdbs)
		return pdbs[0]
	}
	return ""
}

// ParseConfidence reads confidence scores from the first summary/confidence
// json under dir. Missing or malformed files yield nil; confidence is
// best-effort and never fails a job.
func ParseConfidence(dir string, logger *slog.Logger) *structapi.ConfidenceScores {
	var candidates []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, ".json") &&
			(strings.Contains(name, "summary") || strings.Contains(name, "confidence")) {
			candidates = append(candidates, path)
		}
		return nil
	})
	if len(candidates) == 0 {
		return nil
	}
	sort.Strings(candidates)

	b, err := os.ReadFile(candidates[0])
	if err != nil {
		logger.Warn("failed to read confidence summary", "path", candidates[0], "error", err)
		return nil
	}
	var raw struct {
		PLDDT        *float64 `json:"plddt"`
		PTM          *float64 `json:"ptm"`
		IPTM         *float64 `json:"iptm"`
		RankingScore *float64 `json:"ranking_score"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		logger.Warn("failed to parse confidence summary", "path", candidates[0], "error", err)
		return nil
	}
	if raw.PLDDT == nil && raw.PTM == nil && raw.IPTM == nil && raw.RankingScore == nil {
		return nil
	}
	return &structapi.ConfidenceScores{
		PLDDT:        raw.PLDDT,
		PTM:          raw.PTM,
		IPTM:         raw.IPTM,
		RankingScore: raw.RankingScore,
	}
}
