package backend

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/robertftenbosch/tenbio/pkg/structapi"
)

// Sampling parameter ceilings enforced at submission.
const (
	maxNumSeeds   = 10
	maxNumSamples = 20
)

// ValidationError is rejected synchronously at submission; no job record is
// created for it.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return e.Detail }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Detail: fmt.Sprintf(format, args...)}
}

// ValidateChains performs the kind-independent shape checks run before a job
// is created: at least one chain, sequence-bearing chains need a sequence,
// ligand/ion chains need an identifier, counts are at least one.
func ValidateChains(chains []structapi.ChainInput) error {
	if len(chains) == 0 {
		return validationErrorf("at least one chain is required")
	}
	for _, c := range chains {
		switch c.Type {
		case structapi.ChainProtein, structapi.ChainDNA, structapi.ChainRNA:
			if c.Sequence == "" {
				return validationErrorf("Sequence is required for chain type '%s'", c.Type)
			}
		case structapi.ChainLigand:
			if c.LigandID == "" {
				return validationErrorf("ligand_id (CCD code or SMILES) is required for ligand chains")
			}
		case structapi.ChainIon:
			if c.IonID == "" {
				return validationErrorf("ion_id is required for ion chains")
			}
		default:
			return validationErrorf("unknown chain type '%s'", c.Type)
		}
		if c.Count < 0 {
			return validationErrorf("count must be at least 1")
		}
	}
	return nil
}

// MultiEntityPolicy accepts every chain type; used by the Protenix backend.
type MultiEntityPolicy struct{}

func (MultiEntityPolicy) Filter(chains []structapi.ChainInput, _ *slog.Logger) ([]structapi.ChainInput, error) {
	out := make([]structapi.ChainInput, len(chains))
	copy(out, chains)
	return out, nil
}

// SingleProteinPolicy keeps only the first protein chain and drops the rest
// with a warning; used by the ESMFold backend, which predicts single chains.
type SingleProteinPolicy struct{}

func (SingleProteinPolicy) Filter(chains []structapi.ChainInput, logger *slog.Logger) ([]structapi.ChainInput, error) {
	var first *structapi.ChainInput
	dropped := 0
	for i := range chains {
		if chains[i].Type == structapi.ChainProtein {
			if first == nil {
				first = &chains[i]
				continue
			}
		}
		dropped++
	}
	if first == nil {
		return nil, errors.New("at least one protein chain is required")
	}
	if first.Sequence == "" {
		return nil, errors.New("protein sequence is empty")
	}
	if dropped > 0 {
		logger.Warn("backend supports single protein chains only; ignoring extra chains",
			"ignored", dropped)
	}
	return []structapi.ChainInput{*first}, nil
}

// PolicyForKind resolves the chain policy for a backend kind.
func PolicyForKind(kind string) (ChainPolicy, error) {
	switch kind {
	case "protenix":
		return MultiEntityPolicy{}, nil
	case "esm":
		return SingleProteinPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", kind)
	}
}
