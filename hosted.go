package el2

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// MemPerm represents guest memory permissions.
type MemPerm uint

const (
	MemRead  MemPerm = 1 << 0
	MemWrite MemPerm = 1 << 1
	MemExec  MemPerm = 1 << 2
)

// ExitReason categorizes vCPU exits.
type ExitReason int

const (
	ExitUnknown ExitReason = iota
	ExitException
	ExitTimer
	ExitCanceled
)

func (r ExitReason) String() string {
	switch r {
	case ExitException:
		return "exception"
	case ExitTimer:
		return "vtimer"
	case ExitCanceled:
		return "canceled"
	}
	return "unknown"
}

// ExitInfo captures information about a recent vCPU exit.
type ExitInfo struct {
	Reason ExitReason `json:"reason"`
	ESR    uint64     `json:"esr"`
	FAR    uint64     `json:"far"`
}

// GuestCPU is a hosted vCPU whose exits are fed to a Dispatcher. *VCPU
// implements it on darwin/arm64.
type GuestCPU interface {
	Context
	Run() (ExitInfo, error)
}

// Session is the record of a RunGuest call.
type Session struct {
	Outcomes []Outcome
	Last     ExitInfo
}

// RunGuest runs cpu until it executes BRK, exits for a reason other than an
// exception, or maxExits traps have been serviced (0 means no limit). Each
// exception exit is dispatched against the guest's context and sysregs.
//
// An HVC exit reports the PC past the instruction; it is rewound first so
// every trap reaches the dispatcher with PC at the trapping instruction.
// A trapped SMC already reports its own address.
func RunGuest(cpu GuestCPU, d *Dispatcher, sysregs *VSysRegFile, maxExits int, log logrus.FieldLogger) (Session, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	g := &Guest{Ctx: cpu, SysRegs: sysregs}
	var sess Session
	for maxExits == 0 || len(sess.Outcomes) < maxExits {
		info, err := cpu.Run()
		if err != nil {
			return sess, err
		}
		sess.Last = info
		if info.Reason != ExitException {
			log.WithField("reason", info.Reason.String()).Debug("guest exited")
			return sess, nil
		}
		s := Syndrome(info.ESR)
		switch s.Class() {
		case ECBRK64:
			log.Debug("guest hit brk")
			return sess, nil
		case ECHVC64:
			pc, err := cpu.GetReg(RegPC)
			if err != nil {
				return sess, err
			}
			if err := cpu.SetReg(RegPC, pc-instrWidth); err != nil {
				return sess, err
			}
		}
		out, err := d.Dispatch(g, s)
		if err != nil {
			return sess, fmt.Errorf("failed to dispatch %s: %w", s, err)
		}
		sess.Outcomes = append(sess.Outcomes, out)
	}
	return sess, nil
}
