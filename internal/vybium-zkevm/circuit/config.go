package circuit

// Config fixes every capacity of the circuit before assignment. Budgets are
// hard: exceeding any of them is a build-time CapacityExceeded error, never a
// silent reallocation.
type Config struct {
	// MaxRows is the execution circuit's row capacity, padding included
	MaxRows int

	// MaxBytecodeSize caps the total bytecode table rows across all calls
	MaxBytecodeSize int

	// MaxRwEntries caps the read/write table rows
	MaxRwEntries int

	// MaxTxs caps the number of transactions per proof
	MaxTxs int

	// MaxCalldataSize caps the total transaction calldata bytes
	MaxCalldataSize int

	// MaxKeccakRows caps the keccak table rows
	MaxKeccakRows int
}

// DefaultConfig returns capacities suitable for small traces and tests
func DefaultConfig() *Config {
	return &Config{
		MaxRows:         256,
		MaxBytecodeSize: 512,
		MaxRwEntries:    1024,
		MaxTxs:          4,
		MaxCalldataSize: 256,
		MaxKeccakRows:   64,
	}
}

// Validate checks the configuration for internal consistency
func (c *Config) Validate() error {
	if c.MaxRows <= 0 {
		return newError(ErrInvalidConfig, "MaxRows must be positive, got %d", c.MaxRows)
	}
	if c.MaxBytecodeSize <= 0 {
		return newError(ErrInvalidConfig, "MaxBytecodeSize must be positive, got %d", c.MaxBytecodeSize)
	}
	if c.MaxRwEntries <= 0 {
		return newError(ErrInvalidConfig, "MaxRwEntries must be positive, got %d", c.MaxRwEntries)
	}
	if c.MaxTxs <= 0 {
		return newError(ErrInvalidConfig, "MaxTxs must be positive, got %d", c.MaxTxs)
	}
	if c.MaxCalldataSize < 0 {
		return newError(ErrInvalidConfig, "MaxCalldataSize must be non-negative, got %d", c.MaxCalldataSize)
	}
	if c.MaxKeccakRows <= 0 {
		return newError(ErrInvalidConfig, "MaxKeccakRows must be positive, got %d", c.MaxKeccakRows)
	}
	return nil
}
