package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkevm/pkg/vybium-zkevm"
)

// Input format: one JSON document per stdin line, in the order a tracer
// naturally emits them.
type EnvInput struct {
	Block BlockInput `json:"block"`
	Tx    TxInput    `json:"tx"`
}

type BlockInput struct {
	ChainID   uint64 `json:"chain_id"`
	Number    uint64 `json:"number"`
	Timestamp uint64 `json:"timestamp"`
	Coinbase  string `json:"coinbase"` // Hex string
	GasLimit  uint64 `json:"gas_limit"`
}

type TxInput struct {
	Nonce    uint64 `json:"nonce"`
	GasLimit uint64 `json:"gas_limit"`
	GasPrice string `json:"gas_price"`
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	CallData string `json:"calldata"`
}

type CodeInput struct {
	Root      string            `json:"root"` // Hex bytecode of the root call
	ByAddress map[string]string `json:"by_address,omitempty"`
}

type StepInput struct {
	PC      uint64   `json:"pc"`
	Op      byte     `json:"op"`
	Gas     uint64   `json:"gas"`
	GasCost uint64   `json:"gas_cost"`
	Refund  uint64   `json:"refund"`
	Depth   int      `json:"depth"`
	Stack   []string `json:"stack"` // Hex words, bottom first
	Memory  string   `json:"memory"`
	MemSize uint64   `json:"mem_size"`
}

// Output summary written to stdout once the witness checks out
type WitnessOutput struct {
	Rows      int  `json:"rows"`
	StepRows  int  `json:"step_rows"`
	Columns   int  `json:"columns"`
	Satisfied bool `json:"satisfied"`
}

func main() {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<26)

	// Line 1: Environment (block + transaction)
	if !scanner.Scan() {
		fatal("Failed to read environment")
	}
	var env EnvInput
	if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
		fatal(fmt.Sprintf("Failed to parse environment: %v", err))
	}

	// Line 2: Bytecode
	if !scanner.Scan() {
		fatal("Failed to read bytecode")
	}
	var code CodeInput
	if err := json.Unmarshal(scanner.Bytes(), &code); err != nil {
		fatal(fmt.Sprintf("Failed to parse bytecode: %v", err))
	}

	// Line 3: Storage pre-state (may be null)
	if !scanner.Scan() {
		fatal("Failed to read storage")
	}
	var storage map[string]string
	if err := json.Unmarshal(scanner.Bytes(), &storage); err != nil {
		fatal(fmt.Sprintf("Failed to parse storage: %v", err))
	}

	// Line 4: Step log
	if !scanner.Scan() {
		fatal("Failed to read steps")
	}
	var steps []StepInput
	if err := json.Unmarshal(scanner.Bytes(), &steps); err != nil {
		fatal(fmt.Sprintf("Failed to parse steps: %v", err))
	}

	// Line 5: Capacity configuration (may be null for defaults)
	if !scanner.Scan() {
		fatal("Failed to read config")
	}
	var config *vybiumzkevm.Config
	if err := json.Unmarshal(scanner.Bytes(), &config); err != nil {
		fatal(fmt.Sprintf("Failed to parse config: %v", err))
	}
	if config == nil {
		config = vybiumzkevm.DefaultConfig()
	}

	log, err := convertLog(env, code, storage, steps)
	if err != nil {
		fatal(fmt.Sprintf("Failed to convert input: %v", err))
	}

	logStderr("Creating engine...")
	engine, err := vybiumzkevm.NewEngine(config)
	if err != nil {
		fatal(fmt.Sprintf("Failed to create engine: %v", err))
	}

	logStderr(fmt.Sprintf("Arithmetizing %d steps...", len(steps)))
	witness, err := engine.Arithmetize(log)
	if err != nil {
		fatal(fmt.Sprintf("Arithmetization failed: %v", err))
	}

	logStderr("Verifying witness...")
	if err := witness.Verify(); err != nil {
		fatal(fmt.Sprintf("Witness verification failed: %v", err))
	}
	logStderr(fmt.Sprintf("Witness satisfied: %d rows (%d steps)", witness.Rows(), witness.StepRows()))

	out, err := json.Marshal(WitnessOutput{
		Rows:      witness.Rows(),
		StepRows:  witness.StepRows(),
		Columns:   witness.Columns(),
		Satisfied: true,
	})
	if err != nil {
		fatal(fmt.Sprintf("Failed to serialize output: %v", err))
	}
	os.Stdout.Write(out)
	os.Stdout.Write([]byte("\n"))
}

func convertLog(env EnvInput, code CodeInput, storage map[string]string, steps []StepInput) (*vybiumzkevm.ExecutionLog, error) {
	rootCode, err := parseHexBytes(code.Root)
	if err != nil {
		return nil, fmt.Errorf("root bytecode: %w", err)
	}

	log := &vybiumzkevm.ExecutionLog{
		Block: vybiumzkevm.BlockContext{
			ChainID:   env.Block.ChainID,
			Number:    env.Block.Number,
			Timestamp: env.Block.Timestamp,
			GasLimit:  env.Block.GasLimit,
		},
		Tx: vybiumzkevm.Transaction{
			Nonce:    env.Tx.Nonce,
			GasLimit: env.Tx.GasLimit,
		},
		Code: rootCode,
	}

	if log.Block.Coinbase, err = parseWord(env.Block.Coinbase); err != nil {
		return nil, fmt.Errorf("coinbase: %w", err)
	}
	if log.Tx.GasPrice, err = parseWord(env.Tx.GasPrice); err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	if log.Tx.From, err = parseWord(env.Tx.From); err != nil {
		return nil, fmt.Errorf("tx from: %w", err)
	}
	if log.Tx.To, err = parseWord(env.Tx.To); err != nil {
		return nil, fmt.Errorf("tx to: %w", err)
	}
	if log.Tx.Value, err = parseWord(env.Tx.Value); err != nil {
		return nil, fmt.Errorf("tx value: %w", err)
	}
	if log.Tx.CallData, err = parseHexBytes(env.Tx.CallData); err != nil {
		return nil, fmt.Errorf("calldata: %w", err)
	}

	if len(code.ByAddress) > 0 {
		log.CodeByAddress = make(map[vybiumzkevm.Word][]byte, len(code.ByAddress))
		for addr, hexCode := range code.ByAddress {
			w, err := parseWord(addr)
			if err != nil {
				return nil, fmt.Errorf("code address %s: %w", addr, err)
			}
			b, err := parseHexBytes(hexCode)
			if err != nil {
				return nil, fmt.Errorf("code for %s: %w", addr, err)
			}
			log.CodeByAddress[w] = b
		}
	}

	if len(storage) > 0 {
		log.Storage = make(map[vybiumzkevm.Word]vybiumzkevm.Word, len(storage))
		for key, value := range storage {
			k, err := parseWord(key)
			if err != nil {
				return nil, fmt.Errorf("storage key %s: %w", key, err)
			}
			v, err := parseWord(value)
			if err != nil {
				return nil, fmt.Errorf("storage value %s: %w", value, err)
			}
			log.Storage[k] = v
		}
	}

	log.Steps = make([]vybiumzkevm.TraceStep, len(steps))
	for i, s := range steps {
		stack := make([]vybiumzkevm.Word, len(s.Stack))
		for j, hexWord := range s.Stack {
			if stack[j], err = parseWord(hexWord); err != nil {
				return nil, fmt.Errorf("step %d stack[%d]: %w", i, j, err)
			}
		}
		memory, err := parseHexBytes(s.Memory)
		if err != nil {
			return nil, fmt.Errorf("step %d memory: %w", i, err)
		}
		log.Steps[i] = vybiumzkevm.TraceStep{
			PC:      s.PC,
			Op:      s.Op,
			Gas:     s.Gas,
			GasCost: s.GasCost,
			Refund:  s.Refund,
			Depth:   s.Depth,
			Stack:   stack,
			Memory:  memory,
			MemSize: s.MemSize,
		}
	}

	return log, nil
}

func parseWord(s string) (vybiumzkevm.Word, error) {
	if s == "" {
		return uint256.Int{}, nil
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	var w uint256.Int
	if err := w.SetFromHex(s); err != nil {
		return uint256.Int{}, err
	}
	return w, nil
}

func parseHexBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}

func logStderr(msg string) {
	fmt.Fprintln(os.Stderr, "vybium-zkevm:", msg)
}

func fatal(msg string) {
	logStderr("ERROR: " + msg)
	os.Exit(1)
}
