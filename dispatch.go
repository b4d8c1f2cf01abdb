package el2

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Category is what the dispatcher makes of an exception class.
type Category int

const (
	// CategoryUnhandled is every class without a classification entry.
	CategoryUnhandled Category = iota
	CategoryHypervisorCall
	CategorySysRegTrap
)

func (c Category) String() string {
	switch c {
	case CategoryUnhandled:
		return "unhandled"
	case CategoryHypervisorCall:
		return "hypervisor-call"
	case CategorySysRegTrap:
		return "sysreg-trap"
	}
	return fmt.Sprintf("category-%d", int(c))
}

// ClassTable maps exception classes to categories.
type ClassTable map[ExceptionClass]Category

// DefaultClassTable classifies only HVC traps.
func DefaultClassTable() ClassTable {
	return ClassTable{ECHVC64: CategoryHypervisorCall}
}

// Classify returns the category for ec, CategoryUnhandled if none.
func (t ClassTable) Classify(ec ExceptionClass) Category {
	if c, ok := t[ec]; ok {
		return c
	}
	return CategoryUnhandled
}

// TrapHandler services one category of trap.
type TrapHandler interface {
	HandleTrap(g *Guest, s Syndrome) (EmulationResult, error)
}

// UnknownTrapPolicy decides what a guest observes when its trap has no
// category.
type UnknownTrapPolicy int

const (
	// PolicyInjectFault delivers an undefined-instruction exception to the
	// guest.
	PolicyInjectFault UnknownTrapPolicy = iota
	// PolicyResume logs the trap and resumes the guest unchanged.
	PolicyResume
)

func (p UnknownTrapPolicy) String() string {
	if p == PolicyResume {
		return "resume"
	}
	return "fault"
}

// ParseUnknownTrapPolicy accepts "fault" or "resume".
func ParseUnknownTrapPolicy(s string) (UnknownTrapPolicy, error) {
	switch s {
	case "", "fault":
		return PolicyInjectFault, nil
	case "resume":
		return PolicyResume, nil
	}
	return 0, fmt.Errorf("el2: unknown trap policy %q (want fault or resume)", s)
}

// Action is what happened to the guest context.
type Action int

const (
	ActionResumed Action = iota
	ActionEmulated
	ActionFaultInjected
)

func (a Action) String() string {
	switch a {
	case ActionEmulated:
		return "emulated"
	case ActionFaultInjected:
		return "fault-injected"
	}
	return "resumed"
}

// Outcome describes one dispatched trap.
type Outcome struct {
	Syndrome Syndrome
	Category Category
	Result   EmulationResult
	Action   Action
	// Cause is ErrUnknownTrap or ErrUnknownInstruction when the trap could
	// not be serviced.
	Cause error
}

// Dispatcher classifies syndromes and delegates to the handler registered
// for the category. It never saves or restores the interrupted context; the
// vector stub does that around the call. Not safe for concurrent use.
type Dispatcher struct {
	classes  ClassTable
	handlers map[Category]TrapHandler
	policy   UnknownTrapPolicy
	log      logrus.FieldLogger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger used for trap diagnostics.
func WithDispatcherLogger(l logrus.FieldLogger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// WithUnknownTrapPolicy sets the policy for unclassified traps.
func WithUnknownTrapPolicy(p UnknownTrapPolicy) DispatcherOption {
	return func(d *Dispatcher) { d.policy = p }
}

// WithSysRegTraps classifies EC 0x18 and routes it to h.
func WithSysRegTraps(h TrapHandler) DispatcherOption {
	return func(d *Dispatcher) {
		d.Classify(ECSysReg, CategorySysRegTrap)
		d.Route(CategorySysRegTrap, h)
	}
}

// NewDispatcher returns a dispatcher using DefaultClassTable with HVC traps
// routed to hvc.
func NewDispatcher(hvc TrapHandler, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		classes:  DefaultClassTable(),
		handlers: map[Category]TrapHandler{CategoryHypervisorCall: hvc},
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Classify adds or replaces a classification entry.
func (d *Dispatcher) Classify(ec ExceptionClass, c Category) {
	d.classes[ec] = c
}

// Route sets the handler for a category.
func (d *Dispatcher) Route(c Category, h TrapHandler) {
	d.handlers[c] = h
}

// CategoryOf reports how ec is classified.
func (d *Dispatcher) CategoryOf(ec ExceptionClass) Category {
	return d.classes.Classify(ec)
}

// Routed reports whether traps in c reach a handler.
func (d *Dispatcher) Routed(c Category) bool {
	h, ok := d.handlers[c]
	return c != CategoryUnhandled && ok && h != nil
}

// Dispatch services one trap. The returned error is non-nil only when the
// guest context could not be read or updated; unknown traps and
// instructions are reported through Outcome.Cause.
func (d *Dispatcher) Dispatch(g *Guest, s Syndrome) (Outcome, error) {
	record(&trapsDispatched)
	out := Outcome{Syndrome: s, Category: d.classes.Classify(s.Class())}
	log := d.log.WithFields(logrus.Fields{
		"esr":      fmt.Sprintf("%#x", uint64(s)),
		"ec":       fmt.Sprintf("%#x", uint8(s.Class())),
		"category": out.Category.String(),
	})

	if !d.Routed(out.Category) {
		record(&trapsUnhandled)
		out.Cause = ErrUnknownTrap
		if d.policy == PolicyResume {
			log.Warnf("unhandled %s trap, resuming guest", s.Class())
			out.Action = ActionResumed
			return out, nil
		}
		log.Warnf("unhandled %s trap, injecting undefined instruction", s.Class())
		return d.fault(g, s, out)
	}

	res, err := d.handlers[out.Category].HandleTrap(g, s)
	if err != nil {
		return out, fmt.Errorf("%s trap: %w", out.Category, err)
	}
	out.Result = res
	if res == Emulated {
		out.Action = ActionEmulated
		return out, nil
	}
	out.Cause = ErrUnknownInstruction
	log.WithField("iss", fmt.Sprintf("%#x", s.ISS())).Warn("unknown trapped instruction, injecting undefined instruction")
	return d.fault(g, s, out)
}

func (d *Dispatcher) fault(g *Guest, s Syndrome, out Outcome) (Outcome, error) {
	if err := InjectUndefined(g, s); err != nil {
		return out, fmt.Errorf("failed to inject undefined instruction: %w", err)
	}
	out.Action = ActionFaultInjected
	return out, nil
}
