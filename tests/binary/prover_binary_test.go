package binary_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Input documents matching the prover's stdin protocol, one JSON line each
type EnvInput struct {
	Block BlockInput `json:"block"`
	Tx    TxInput    `json:"tx"`
}

type BlockInput struct {
	ChainID   uint64 `json:"chain_id"`
	Number    uint64 `json:"number"`
	Timestamp uint64 `json:"timestamp"`
	Coinbase  string `json:"coinbase"`
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
	Root      string            `json:"root"`
	ByAddress map[string]string `json:"by_address,omitempty"`
}

type StepInput struct {
	PC      uint64   `json:"pc"`
	Op      byte     `json:"op"`
	Gas     uint64   `json:"gas"`
	GasCost uint64   `json:"gas_cost"`
	Refund  uint64   `json:"refund"`
	Depth   int      `json:"depth"`
	Stack   []string `json:"stack"`
	Memory  string   `json:"memory"`
	MemSize uint64   `json:"mem_size"`
}

type WitnessOutput struct {
	Rows      int  `json:"rows"`
	StepRows  int  `json:"step_rows"`
	Columns   int  `json:"columns"`
	Satisfied bool `json:"satisfied"`
}

type TestCase struct {
	Name             string
	Env              EnvInput
	Code             CodeInput
	Storage          map[string]string
	Steps            []StepInput
	ExpectedExitCode int
}

// addCase is the PUSH1 1, PUSH1 2, ADD, STOP program
func addCase() TestCase {
	return TestCase{
		Name: "Add Two Numbers",
		Env: EnvInput{
			Block: BlockInput{ChainID: 1, Number: 100, Timestamp: 1700000000, GasLimit: 30_000_000},
			Tx:    TxInput{GasLimit: 100000, From: "0xa11ce", To: "0xb0b"},
		},
		Code: CodeInput{Root: "600160020100"},
		Steps: []StepInput{
			{PC: 0, Op: 0x60, Gas: 79000, GasCost: 3, Depth: 1},
			{PC: 2, Op: 0x60, Gas: 78997, GasCost: 3, Depth: 1, Stack: []string{"0x1"}},
			{PC: 4, Op: 0x01, Gas: 78994, GasCost: 3, Depth: 1, Stack: []string{"0x1", "0x2"}},
			{PC: 5, Op: 0x00, Gas: 78991, GasCost: 0, Depth: 1, Stack: []string{"0x3"}},
		},
		ExpectedExitCode: 0,
	}
}

func TestProverBinaryInterface(t *testing.T) {
	proverPath, err := buildProver(t)
	if err != nil {
		t.Skipf("Skipping test: Failed to build vybium-zkevm-prover: %v", err)
	}
	defer func() {
		if err := os.Remove(proverPath); err != nil {
			t.Logf("Warning: failed to remove temp binary: %v", err)
		}
	}()

	add := addCase()

	underflow := addCase()
	underflow.Name = "Stack Underflow"
	underflow.Steps[2].Stack = []string{"0x1"}
	underflow.Steps[3].Stack = nil
	underflow.ExpectedExitCode = 1

	storage := TestCase{
		Name: "Storage Write Over Seeded State",
		Env: EnvInput{
			Block: BlockInput{ChainID: 1, Number: 100, Timestamp: 1700000000, GasLimit: 30_000_000},
			Tx:    TxInput{GasLimit: 100000, From: "0xa11ce", To: "0xb0b"},
		},
		Code:    CodeInput{Root: "600160005500"},
		Storage: map[string]string{"0x0": "0x7"},
		Steps: []StepInput{
			{PC: 0, Op: 0x60, Gas: 79000, GasCost: 3, Depth: 1},
			{PC: 2, Op: 0x60, Gas: 78997, GasCost: 3, Depth: 1, Stack: []string{"0x1"}},
			{PC: 4, Op: 0x55, Gas: 78994, GasCost: 2900, Depth: 1, Stack: []string{"0x1", "0x0"}},
			{PC: 5, Op: 0x00, Gas: 76094, GasCost: 0, Depth: 1},
		},
		ExpectedExitCode: 0,
	}

	for _, tc := range []TestCase{add, underflow, storage} {
		t.Run(tc.Name, func(t *testing.T) {
			stdout, stderr, exitCode := runProver(proverPath, tc)
			if exitCode != tc.ExpectedExitCode {
				t.Fatalf("exit code = %d, want %d\nstderr:\n%s", exitCode, tc.ExpectedExitCode, stderr)
			}
			if tc.ExpectedExitCode != 0 {
				if !strings.Contains(stderr, "ERROR") {
					t.Errorf("failing run must report an error on stderr, got:\n%s", stderr)
				}
				return
			}

			var out WitnessOutput
			if err := json.Unmarshal([]byte(stdout), &out); err != nil {
				t.Fatalf("stdout is not a witness summary: %v\nstdout:\n%s", err, stdout)
			}
			if !out.Satisfied {
				t.Error("witness reported unsatisfied")
			}
			if out.StepRows != len(tc.Steps)+3 {
				t.Errorf("step rows = %d, want %d opcodes + 3 virtual steps", out.StepRows, len(tc.Steps))
			}
			if out.Rows < out.StepRows || out.Columns == 0 {
				t.Errorf("implausible dimensions: rows=%d stepRows=%d columns=%d",
					out.Rows, out.StepRows, out.Columns)
			}
		})
	}
}

// TestProverDeterminism runs the prover repeatedly over the same log and
// demands byte-identical output
func TestProverDeterminism(t *testing.T) {
	proverPath, err := buildProver(t)
	if err != nil {
		t.Skipf("Skipping test: Failed to build vybium-zkevm-prover: %v", err)
	}
	defer os.Remove(proverPath)

	tc := addCase()

	var first string
	for i := 0; i < 3; i++ {
		stdout, stderr, exitCode := runProver(proverPath, tc)
		if exitCode != 0 {
			t.Fatalf("Run %d failed with exit code %d: %s", i+1, exitCode, stderr)
		}
		if i == 0 {
			first = stdout
			continue
		}
		if stdout != first {
			t.Fatalf("Run %d output differs:\n%s\nvs\n%s", i+1, stdout, first)
		}
	}
}

func buildProver(t *testing.T) (string, error) {
	projectRoot, err := findProjectRoot()
	if err != nil {
		return "", err
	}

	binaryPath := filepath.Join(projectRoot, "vybium-zkevm-prover")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/vybium-zkevm-prover")
	cmd.Dir = projectRoot

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("build failed: %v, output: %s", err, string(output))
	}

	return binaryPath, nil
}

func runProver(proverPath string, tc TestCase) (stdout string, stderr string, exitCode int) {
	envJSON, _ := json.Marshal(tc.Env)
	codeJSON, _ := json.Marshal(tc.Code)
	storageJSON, _ := json.Marshal(tc.Storage)
	stepsJSON, _ := json.Marshal(tc.Steps)

	input := bytes.Buffer{}
	input.Write(envJSON)
	input.WriteString("\n")
	input.Write(codeJSON)
	input.WriteString("\n")
	input.Write(storageJSON)
	input.WriteString("\n")
	input.Write(stepsJSON)
	input.WriteString("\n")
	input.WriteString("null\n") // default capacity configuration

	cmd := exec.Command(proverPath)
	cmd.Stdin = &input

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()

	exitCode = 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("project root not found")
		}
		dir = parent
	}
}
