package predict

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/robertftenbosch/tenbio/pkg/structapi"
)

// Protenix input format: a list of samples, each with a name, an entity list
// and optional covalent bonds.

type proteinChainEntity struct {
	Sequence string `json:"sequence"`
	Count    int    `json:"count"`
}

type nucleicEntity struct {
	Sequence string `json:"sequence"`
	Count    int    `json:"count"`
}

type ligandEntity struct {
	Ligand string `json:"ligand"`
	Count  int    `json:"count"`
}

type ionEntity struct {
	Ion   string `json:"ion"`
	Count int    `json:"count"`
}

type inputSample struct {
	Name          string           `json:"name"`
	Sequences     []map[string]any `json:"sequences"`
	CovalentBonds []any            `json:"covalent_bonds"`
}

// BuildRunnerInput converts chains into the runner's input sample list.
func BuildRunnerInput(name string, chains []structapi.ChainInput) []inputSample {
	sample := inputSample{
		Name:          name,
		Sequences:     make([]map[string]any, 0, len(chains)),
		CovalentBonds: []any{},
	}
	for _, c := range chains {
		count := c.Count
		if count < 1 {
			count = 1
		}
		switch c.Type {
		case structapi.ChainProtein:
			sample.Sequences = append(sample.Sequences, map[string]any{
				"proteinChain": proteinChainEntity{Sequence: c.Sequence, Count: count},
			})
		case structapi.ChainDNA:
			sample.Sequences = append(sample.Sequences, map[string]any{
				"dnaSequence": nucleicEntity{Sequence: c.Sequence, Count: count},
			})
		case structapi.ChainRNA:
			sample.Sequences = append(sample.Sequences, map[string]any{
				"rnaSequence": nucleicEntity{Sequence: c.Sequence, Count: count},
			})
		case structapi.ChainLigand:
			ligand := c.LigandID
			if ligand == "" {
				ligand = "UNK"
			}
			sample.Sequences = append(sample.Sequences, map[string]any{
				"ligand": ligandEntity{Ligand: ligand, Count: count},
			})
		case structapi.ChainIon:
			ion := c.IonID
			if ion == "" {
				ion = "MG"
			}
			sample.Sequences = append(sample.Sequences, map[string]any{
				"ion": ionEntity{Ion: ion, Count: count},
			})
		}
	}
	return []inputSample{sample}
}

// WriteRunnerInput writes input.json into the job output dir and returns its
// path.
func WriteRunnerInput(in Input) (string, error) {
	samples := BuildRunnerInput(in.Name, in.Chains)
	b, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode runner input: %w", err)
	}
	path := filepath.Join(in.OutputDir, "input.json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write runner input: %w", err)
	}
	return path, nil
}

// Seeds derives the seed list for a request: num seeds counting up from 101.
func Seeds(numSeeds int) []int {
	if numSeeds < 1 {
		numSeeds = 1
	}
	out := make([]int, numSeeds)
	for i := range out {
		out[i] = 101 + i
	}
	return out
}
