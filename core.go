package el2

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Core wires the trap configurator, translation manager, dispatcher and
// emulator around one SysRegPort.
type Core struct {
	Port       SysRegPort
	MMU        *MMU
	Emulator   *Emulator
	Dispatcher *Dispatcher

	log logrus.FieldLogger
}

// NewCore builds a core from cfg. log may be nil.
func NewCore(cfg *Config, port SysRegPort, table *Table, log logrus.FieldLogger) (*Core, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidConfig)
	}
	ids, err := cfg.SysRegIDs()
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidConfig)
	}

	emu := NewEmulator(WithEmulatorLogger(log.WithField("component", "emulator")), WithTrappedSysRegs(ids...))
	opts := []DispatcherOption{
		WithDispatcherLogger(log.WithField("component", "dispatcher")),
		WithUnknownTrapPolicy(policy),
	}
	if cfg.RouteSysRegTraps {
		opts = append(opts, WithSysRegTraps(emu))
	}

	return &Core{
		Port:       port,
		MMU:        NewMMU(port, table, WithMMULogger(log.WithField("component", "mmu"))),
		Emulator:   emu,
		Dispatcher: NewDispatcher(emu, opts...),
		log:        log,
	}, nil
}

// Boot configures traps, then brings up translation. Traps are configured
// first so they are in place whatever happens to translation setup.
func (c *Core) Boot() error {
	c.log.WithField("el", CurrentExceptionLevel(c.Port)).Info("starting EL2 core")
	ConfigureTraps(c.Port)
	if err := c.MMU.Initialize(); err != nil {
		record(&bootFailures)
		return fmt.Errorf("mmu initialization failed: %w", err)
	}
	c.log.Info("mmu initialization complete")
	return nil
}

// OnSync is the entry point for the synchronous-exception vector stub: g
// holds the context the stub saved, and the syndrome is read from ESR_EL2.
func (c *Core) OnSync(g *Guest) (Outcome, error) {
	return c.Dispatcher.Dispatch(g, Syndrome(c.Port.Read(ESR_EL2)))
}
