/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"

	"github.com/blacktop/go-el2"
)

// CPUState represents a guest register context as JSON.
type CPUState struct {
	// General-purpose registers
	X0  uint64 `json:"x0"`
	X1  uint64 `json:"x1"`
	X2  uint64 `json:"x2"`
	X3  uint64 `json:"x3"`
	X4  uint64 `json:"x4"`
	X5  uint64 `json:"x5"`
	X6  uint64 `json:"x6"`
	X7  uint64 `json:"x7"`
	X8  uint64 `json:"x8"`
	X9  uint64 `json:"x9"`
	X10 uint64 `json:"x10"`
	X11 uint64 `json:"x11"`
	X12 uint64 `json:"x12"`
	X13 uint64 `json:"x13"`
	X14 uint64 `json:"x14"`
	X15 uint64 `json:"x15"`
	X16 uint64 `json:"x16"`
	X17 uint64 `json:"x17"`
	X18 uint64 `json:"x18"`
	X19 uint64 `json:"x19"`
	X20 uint64 `json:"x20"`
	X21 uint64 `json:"x21"`
	X22 uint64 `json:"x22"`
	X23 uint64 `json:"x23"`
	X24 uint64 `json:"x24"`
	X25 uint64 `json:"x25"`
	X26 uint64 `json:"x26"`
	X27 uint64 `json:"x27"`
	X28 uint64 `json:"x28"`

	// Special registers
	FP   uint64 `json:"fp"`   // Frame pointer (x29)
	LR   uint64 `json:"lr"`   // Link register (x30)
	SP   uint64 `json:"sp"`   // Stack pointer
	PC   uint64 `json:"pc"`   // Program counter
	CPSR uint64 `json:"cpsr"` // Current program status register
}

func (s *CPUState) regs() map[el2.Reg]*uint64 {
	return map[el2.Reg]*uint64{
		el2.RegX0:   &s.X0,
		el2.RegX1:   &s.X1,
		el2.RegX2:   &s.X2,
		el2.RegX3:   &s.X3,
		el2.RegX4:   &s.X4,
		el2.RegX5:   &s.X5,
		el2.RegX6:   &s.X6,
		el2.RegX7:   &s.X7,
		el2.RegX8:   &s.X8,
		el2.RegX9:   &s.X9,
		el2.RegX10:  &s.X10,
		el2.RegX11:  &s.X11,
		el2.RegX12:  &s.X12,
		el2.RegX13:  &s.X13,
		el2.RegX14:  &s.X14,
		el2.RegX15:  &s.X15,
		el2.RegX16:  &s.X16,
		el2.RegX17:  &s.X17,
		el2.RegX18:  &s.X18,
		el2.RegX19:  &s.X19,
		el2.RegX20:  &s.X20,
		el2.RegX21:  &s.X21,
		el2.RegX22:  &s.X22,
		el2.RegX23:  &s.X23,
		el2.RegX24:  &s.X24,
		el2.RegX25:  &s.X25,
		el2.RegX26:  &s.X26,
		el2.RegX27:  &s.X27,
		el2.RegX28:  &s.X28,
		el2.RegFP:   &s.FP,
		el2.RegLR:   &s.LR,
		el2.RegSP:   &s.SP,
		el2.RegPC:   &s.PC,
		el2.RegCPSR: &s.CPSR,
	}
}

// setCPUState loads the non-zero registers of state into ctx.
func setCPUState(ctx el2.Context, state *CPUState) error {
	for reg, val := range state.regs() {
		if *val != 0 {
			if err := ctx.SetReg(reg, *val); err != nil {
				return fmt.Errorf("failed to set %v: %w", reg, err)
			}
		}
	}
	return nil
}

// getCPUState reads every register of ctx.
func getCPUState(ctx el2.Context) (*CPUState, error) {
	state := &CPUState{}
	for reg, val := range state.regs() {
		v, err := ctx.GetReg(reg)
		if err != nil {
			return nil, fmt.Errorf("failed to get %v: %w", reg, err)
		}
		*val = v
	}
	return state, nil
}
