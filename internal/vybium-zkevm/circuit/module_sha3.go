package circuit

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/crypto/sha3"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// sha3Module handles SHA3. Word slots: 0 the memory offset, 1 the length,
// 2 the pushed digest. The hash itself is not re-derived in constraints;
// the keccak table holds (preimage rlc, length, digest rlc) facts and the
// row claims one of them. The preimage RLC lives in the phase-two scratch
// column since it depends on the lookup challenge.
type sha3Module struct{}

func (m *sha3Module) State() ExecutionState { return StateSha3 }

func (m *sha3Module) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateSha3, evm.SHA3)
	rwCountGate(cs, StateSha3, 3)
	spDeltaGate(cs, StateSha3, 1)
	binaryOpLookups(cs, StateSha3, "sha3")

	// Offset and length address caller memory, so both fit a machine word.
	cs.AddGate(Gate{
		Name:   "sha3_offset_fits_u64",
		Degree: 2,
		State:  StateSha3,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return wordHighSum(cur, 0)
		},
	})
	cs.AddGate(Gate{
		Name:   "sha3_length_fits_u64",
		Degree: 2,
		State:  StateSha3,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return wordHighSum(cur, 1)
		},
	})

	cs.AddLookup(Lookup{
		Name:  "sha3_keccak_fact",
		State: StateSha3,
		Table: TableKeccak,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			return []fr.Element{
				cur[AuxCol(auxScratch)],
				wordLowU64(cur, 1),
				wordRLC(cur, 2, ch.EvmWord),
			}
		},
	})
}

func (m *sha3Module) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := binaryOpRws(asg, row, step); err != nil {
		return err
	}
	length, err := requireU64Word(row, step, "hash length", step.Rws[1].Value)
	if err != nil {
		return err
	}
	if uint64(len(step.KeccakPreimage)) != length {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"preimage is %d bytes, stack claims %d", len(step.KeccakPreimage), length)
	}

	h := sha3.NewLegacyKeccak256()
	h.Write(step.KeccakPreimage)
	var digest trace.Word
	digest.SetBytes(h.Sum(nil))
	if !digest.Eq(&step.Rws[2].Value) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"pushed word is not the keccak digest of the preimage")
	}

	// Dynamic cost: the per-word hash fee on top of the base fee, plus any
	// memory growth the read span forces.
	offset, err := requireU64Word(row, step, "hash offset", step.Rws[0].Value)
	if err != nil {
		return err
	}
	oldSize := uint64(step.MemorySize)
	newSize := oldSize
	if length > 0 {
		if grown := 32 * ((offset + length + 31) / 32); grown > newSize {
			newSize = grown
		}
	}
	words := (length + 31) / 32
	want := evm.GasKeccak256 + evm.GasKeccak256Word*words + memGasCost(newSize) - memGasCost(oldSize)
	if step.GasCost != want {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"gas cost %d, hashing %d bytes costs %d", step.GasCost, length, want)
	}
	return nil
}

func (m *sha3Module) AssignPhase2(asg *Assignment, row int, step *trace.Step, ch *Challenges) error {
	asg.Set(row, AuxCol(auxScratch), bytesRLC(step.KeccakPreimage, ch.LookupInput))
	return nil
}
