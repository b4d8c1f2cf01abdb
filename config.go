package el2

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultTableBase is where the simulated table is installed.
const DefaultTableBase = 0x80000

// Config selects the core's policies and, for simulation, the initial
// register state.
type Config struct {
	// UnknownTrap is "fault" or "resume".
	UnknownTrap string `yaml:"unknown_trap"`
	// RouteSysRegTraps classifies EC 0x18 and sends it to the emulator.
	RouteSysRegTraps bool `yaml:"route_sysreg_traps"`
	// TrappedSysRegs are the EL1 registers given emulation entries. Empty
	// with RouteSysRegTraps set means the TVM set.
	TrappedSysRegs []string          `yaml:"trapped_sysregs,omitempty"`
	TableBase      uint64            `yaml:"table_base"`
	Registers      map[string]uint64 `yaml:"registers,omitempty"`
	LogLevel       string            `yaml:"log_level"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		UnknownTrap: PolicyInjectFault.String(),
		TableBase:   DefaultTableBase,
		LogLevel:    logrus.InfoLevel.String(),
	}
}

// LoadConfig reads a YAML file over DefaultConfig and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over DefaultConfig and validates it.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("unknown_trap: %v: %w", err, ErrInvalidConfig)
	}
	if _, err := c.SysRegIDs(); err != nil {
		return fmt.Errorf("trapped_sysregs: %v: %w", err, ErrInvalidConfig)
	}
	if _, err := c.InitialRegisters(); err != nil {
		return fmt.Errorf("registers: %v: %w", err, ErrInvalidConfig)
	}
	if c.TableBase%TableAlign != 0 {
		return fmt.Errorf("table_base %#x not %d-byte aligned: %w", c.TableBase, TableAlign, ErrInvalidConfig)
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("log_level: %v: %w", err, ErrInvalidConfig)
	}
	return nil
}

func (c *Config) Policy() (UnknownTrapPolicy, error) {
	return ParseUnknownTrapPolicy(c.UnknownTrap)
}

// SysRegIDs resolves TrappedSysRegs.
func (c *Config) SysRegIDs() ([]SysRegID, error) {
	if len(c.TrappedSysRegs) == 0 {
		if c.RouteSysRegTraps {
			return append([]SysRegID(nil), TVMRegisters...), nil
		}
		return nil, nil
	}
	ids := make([]SysRegID, 0, len(c.TrappedSysRegs))
	for _, name := range c.TrappedSysRegs {
		id, err := ParseSysRegID(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// InitialRegisters resolves Registers.
func (c *Config) InitialRegisters() (map[SysReg]uint64, error) {
	regs := make(map[SysReg]uint64, len(c.Registers))
	for name, v := range c.Registers {
		r, err := ParseSysReg(name)
		if err != nil {
			return nil, err
		}
		regs[r] = v
	}
	return regs, nil
}

func (c *Config) Level() (logrus.Level, error) {
	if c.LogLevel == "" {
		return logrus.InfoLevel, nil
	}
	return logrus.ParseLevel(c.LogLevel)
}
