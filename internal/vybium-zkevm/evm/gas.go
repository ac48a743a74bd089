package evm

// Constant gas cost tiers, following the yellow-paper fee schedule
const (
	GasZeroStep    uint64 = 0
	GasQuickStep   uint64 = 2
	GasFastestStep uint64 = 3
	GasFastStep    uint64 = 5
	GasMidStep     uint64 = 8
	GasSlowStep    uint64 = 10

	// GasJumpDest is charged for the JUMPDEST marker itself
	GasJumpDest uint64 = 1

	// GasKeccak256 is the base cost of SHA3, before the per-word component
	GasKeccak256     uint64 = 30
	GasKeccak256Word uint64 = 6

	// GasWarmAccess is the warm storage/account access cost (EIP-2929)
	GasWarmAccess uint64 = 100

	// GasSstoreReset is charged when SSTORE changes a non-zero slot
	GasSstoreReset uint64 = 2900

	// GasSstoreSet is charged when SSTORE fills an empty slot
	GasSstoreSet uint64 = 20000

	// GasMemoryWord is the linear per-word cost of memory expansion
	GasMemoryWord uint64 = 3

	// GasCallBase is the warm base cost of CALL
	GasCallBase uint64 = 100

	// GasTx is the intrinsic cost of a transaction
	GasTx uint64 = 21000
)

// StackInfo describes an opcode's static stack discipline: how many words it
// pops, how many it pushes, and the minimum depth it requires.
type StackInfo struct {
	Pops   int
	Pushes int
}

// Delta returns the net stack pointer movement (pushes - pops)
func (s StackInfo) Delta() int {
	return s.Pushes - s.Pops
}

// MinDepth returns the stack depth the opcode requires before executing
func (s StackInfo) MinDepth() int {
	return s.Pops
}

// constantGas maps opcodes without a dynamic component to their fixed cost.
// Opcodes with dynamic components (SHA3, SSTORE, memory expansion) store the
// static base here; the dynamic part is computed by the constraint module.
var constantGas = map[OpcodeId]uint64{
	STOP:      GasZeroStep,
	ADD:       GasFastestStep,
	MUL:       GasFastStep,
	SUB:       GasFastestStep,
	DIV:       GasFastStep,
	MOD:       GasFastStep,
	LT:        GasFastestStep,
	GT:        GasFastestStep,
	EQ:        GasFastestStep,
	ISZERO:    GasFastestStep,
	AND:       GasFastestStep,
	OR:        GasFastestStep,
	XOR:       GasFastestStep,
	NOT:       GasFastestStep,
	SHA3:      GasKeccak256,
	ADDRESS:   GasQuickStep,
	CALLER:    GasQuickStep,
	CALLVALUE: GasQuickStep,
	COINBASE:  GasQuickStep,
	TIMESTAMP: GasQuickStep,
	NUMBER:    GasQuickStep,
	GASLIMIT:  GasQuickStep,
	POP:       GasQuickStep,
	MLOAD:     GasFastestStep,
	MSTORE:    GasFastestStep,
	MSTORE8:   GasFastestStep,
	SLOAD:     GasWarmAccess,
	SSTORE:    GasWarmAccess,
	JUMP:      GasMidStep,
	JUMPI:     GasSlowStep,
	PC:        GasQuickStep,
	MSIZE:     GasQuickStep,
	GAS:       GasQuickStep,
	JUMPDEST:  GasJumpDest,
	CALL:      GasCallBase,
	RETURN:    GasZeroStep,
	REVERT:    GasZeroStep,
}

// ConstantGas returns the static gas cost of the opcode
func ConstantGas(op OpcodeId) uint64 {
	if gas, ok := constantGas[op]; ok {
		return gas
	}
	if op.IsPush() || op.IsDup() || op.IsSwap() {
		return GasFastestStep
	}
	return 0
}

// stackInfo maps each opcode family to its stack discipline
func stackInfoFor(op OpcodeId) StackInfo {
	switch {
	case op.IsPush():
		return StackInfo{Pops: 0, Pushes: 1}
	case op.IsDup():
		return StackInfo{Pops: int(op-DUP1) + 1, Pushes: int(op-DUP1) + 2}
	case op.IsSwap():
		return StackInfo{Pops: int(op-SWAP1) + 2, Pushes: int(op-SWAP1) + 2}
	}

	switch op {
	case STOP, JUMPDEST:
		return StackInfo{0, 0}
	case ADD, MUL, SUB, DIV, MOD, LT, GT, EQ, AND, OR, XOR:
		return StackInfo{2, 1}
	case ISZERO, NOT, MLOAD, SLOAD:
		return StackInfo{1, 1}
	case SHA3:
		return StackInfo{2, 1}
	case ADDRESS, CALLER, CALLVALUE, COINBASE, TIMESTAMP, NUMBER, GASLIMIT,
		PC, MSIZE, GAS:
		return StackInfo{0, 1}
	case POP, JUMP:
		return StackInfo{1, 0}
	case MSTORE, MSTORE8, SSTORE, JUMPI, RETURN, REVERT:
		return StackInfo{2, 0}
	case CALL:
		return StackInfo{7, 1}
	}
	return StackInfo{0, 0}
}

// Stack returns the opcode's stack discipline
func (op OpcodeId) Stack() StackInfo {
	return stackInfoFor(op)
}
