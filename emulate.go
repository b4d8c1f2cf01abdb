package el2

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Instruction width the saved PC advances by after an emulated access.
const instrWidth = 4

// EmulationResult reports whether a trapped instruction was emulated.
type EmulationResult int

const (
	// Unknown means no registered entry matched the syndrome. It is an
	// expected outcome for unimplemented traps, not a failure.
	Unknown EmulationResult = iota
	Emulated
)

func (r EmulationResult) String() string {
	if r == Emulated {
		return "emulated"
	}
	return "unknown"
}

// Guest is the state a trap is emulated against: the interrupted context
// saved by the vector stub and that guest's virtual system registers.
type Guest struct {
	Ctx     Context
	SysRegs *VSysRegFile
}

// NewGuest pairs ctx with an empty virtual register file.
func NewGuest(ctx Context) *Guest {
	return &Guest{Ctx: ctx, SysRegs: NewVSysRegFile()}
}

// EmulateFunc carries out one trapped instruction against g.
type EmulateFunc func(g *Guest, s Syndrome) error

// Entry is one decode rule: an ISS matches when iss&Mask == Match.
type Entry struct {
	Name    string
	Mask    uint32
	Match   uint32
	Handler EmulateFunc
}

// Decode masks for register-access entries: every ISS bit except Rt.
const sysRegEntryMask = issMask &^ ISSRtMask

// ISS values of the HVC register-access calls.
const (
	ISSHVCSysRegWrite = 0x10
	ISSHVCSysRegRead  = 0x11
)

// Emulator decodes trapped privileged instructions through a table of
// Entries. Entries are tried in registration order; the first match wins.
// An Emulator is not safe for concurrent use.
type Emulator struct {
	entries []Entry
	log     logrus.FieldLogger
}

// EmulatorOption configures an Emulator.
type EmulatorOption func(*Emulator)

// WithEmulatorLogger sets the logger used for emulation diagnostics.
func WithEmulatorLogger(l logrus.FieldLogger) EmulatorOption {
	return func(e *Emulator) { e.log = l }
}

// WithTrappedSysRegs registers read and write entries for each register.
func WithTrappedSysRegs(ids ...SysRegID) EmulatorOption {
	return func(e *Emulator) {
		for _, id := range ids {
			e.RegisterSysReg(id)
		}
	}
}

// NewEmulator returns an emulator with the HVC register-access entries
// (ISS 0x10 write, 0x11 read) registered.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{log: logrus.StandardLogger()}
	e.Register(Entry{Name: "hvc-msr", Mask: sysRegEntryMask, Match: ISSHVCSysRegWrite, Handler: e.writeSysReg})
	e.Register(Entry{Name: "hvc-mrs", Mask: sysRegEntryMask, Match: ISSHVCSysRegRead, Handler: e.readSysReg})
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register appends a decode entry.
func (e *Emulator) Register(ent Entry) {
	e.entries = append(e.entries, ent)
}

// RegisterSysReg adds MSR and MRS entries for id.
func (e *Emulator) RegisterSysReg(id SysRegID) {
	e.Register(Entry{
		Name:    "msr " + id.String(),
		Mask:    sysRegEntryMask,
		Match:   SysRegAccess{Reg: id}.ISS(),
		Handler: e.writeSysReg,
	})
	e.Register(Entry{
		Name:    "mrs " + id.String(),
		Mask:    sysRegEntryMask,
		Match:   SysRegAccess{Reg: id, Read: true}.ISS(),
		Handler: e.readSysReg,
	})
}

// Entries returns the registered entries in match order.
func (e *Emulator) Entries() []Entry {
	return append([]Entry(nil), e.entries...)
}

// Lookup returns the entry that would handle iss.
func (e *Emulator) Lookup(iss uint32) (Entry, bool) {
	iss &= issMask
	for _, ent := range e.entries {
		if iss&ent.Mask == ent.Match {
			return ent, true
		}
	}
	return Entry{}, false
}

// Emulate decodes the syndrome's ISS and runs the matching entry. It returns
// Unknown, with a nil error, when nothing matches; the caller decides how the
// guest observes that (see Dispatcher). A non-nil error means the guest
// context could not be accessed.
func (e *Emulator) Emulate(g *Guest, s Syndrome) (EmulationResult, error) {
	ent, ok := e.Lookup(s.ISS())
	if !ok {
		record(&unknownInstructions)
		e.log.WithFields(logrus.Fields{
			"esr": fmt.Sprintf("%#x", uint64(s)),
			"iss": fmt.Sprintf("%#x", s.ISS()),
		}).Warn("no emulation entry for trapped instruction")
		return Unknown, nil
	}
	if err := ent.Handler(g, s); err != nil {
		return Unknown, fmt.Errorf("%s: %w", ent.Name, err)
	}
	record(&trapsEmulated)
	return Emulated, nil
}

// HandleTrap implements TrapHandler.
func (e *Emulator) HandleTrap(g *Guest, s Syndrome) (EmulationResult, error) {
	return e.Emulate(g, s)
}

func (e *Emulator) writeSysReg(g *Guest, s Syndrome) error {
	acc := DecodeSysRegISS(s.ISS())
	var v uint64
	if r, ok := GPR(acc.Rt); ok {
		var err error
		if v, err = g.Ctx.GetReg(r); err != nil {
			return err
		}
	}
	g.SysRegs.Set(acc.Reg, v)
	record(&vsysregWrites)
	e.log.WithFields(logrus.Fields{"sysreg": acc.Reg.String(), "rt": acc.Rt}).Debugf("emulated %s", acc)
	return advancePC(g.Ctx)
}

func (e *Emulator) readSysReg(g *Guest, s Syndrome) error {
	acc := DecodeSysRegISS(s.ISS())
	if r, ok := GPR(acc.Rt); ok {
		if err := g.Ctx.SetReg(r, g.SysRegs.Get(acc.Reg)); err != nil {
			return err
		}
	}
	record(&vsysregReads)
	e.log.WithFields(logrus.Fields{"sysreg": acc.Reg.String(), "rt": acc.Rt}).Debugf("emulated %s", acc)
	return advancePC(g.Ctx)
}

func advancePC(ctx Context) error {
	pc, err := ctx.GetReg(RegPC)
	if err != nil {
		return err
	}
	return ctx.SetReg(RegPC, pc+instrWidth)
}
