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
	"strconv"

	"github.com/blacktop/go-el2"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().Bool("insn", false, "Treat the value as an A64 instruction word")
}

// DecodeResult describes how the configured core would treat a syndrome.
type DecodeResult struct {
	Syndrome string `json:"syndrome"`
	Category string `json:"category"`
	Access   string `json:"access,omitempty"`
	Entry    string `json:"entry,omitempty"`
	Routed   bool   `json:"routed"`
}

func decodeSyndrome(core *el2.Core, s el2.Syndrome) DecodeResult {
	cat := core.Dispatcher.CategoryOf(s.Class())
	res := DecodeResult{
		Syndrome: s.String(),
		Category: cat.String(),
		Routed:   core.Dispatcher.Routed(cat),
	}
	switch s.Class() {
	case el2.ECHVC64, el2.ECSysReg:
		res.Access = el2.DecodeSysRegISS(s.ISS()).String()
		if !res.Routed {
			break
		}
		if ent, ok := core.Emulator.Lookup(s.ISS()); ok {
			res.Entry = ent.Name
		}
	}
	return res
}

var decodeCmd = &cobra.Command{
	Use:   "decode [ESR|INSN]",
	Short: "Decode an ESR_EL2 syndrome or the syndrome an instruction would raise",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		insn, _ := cmd.Flags().GetBool("insn")
		v, err := strconv.ParseUint(args[0], 0, 64)
		if err != nil {
			return fmt.Errorf("failed to parse %q: %w", args[0], err)
		}
		core, _, err := newSimCore()
		if err != nil {
			return err
		}

		var s el2.Syndrome
		if insn {
			if v > 0xFFFFFFFF {
				return fmt.Errorf("instruction word %#x wider than 32 bits", v)
			}
			text, err := el2.Disassemble(uint32(v))
			if err != nil {
				return err
			}
			fmt.Printf("insn:     %s\n", text)
			if s, err = el2.SyndromeForInstruction(uint32(v)); err != nil {
				return err
			}
		} else {
			s = el2.Syndrome(v)
		}

		res := decodeSyndrome(core, s)
		fmt.Printf("syndrome: %s\n", res.Syndrome)
		fmt.Printf("category: %s\n", res.Category)
		if res.Access != "" {
			fmt.Printf("access:   %s\n", res.Access)
		}
		switch {
		case !res.Routed:
			fmt.Println("entry:    none (unknown trap)")
		case res.Entry != "":
			fmt.Printf("entry:    %s\n", res.Entry)
		case res.Access != "":
			fmt.Println("entry:    none (unknown instruction)")
		}
		return nil
	},
}
