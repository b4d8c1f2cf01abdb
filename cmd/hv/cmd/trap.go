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
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blacktop/go-el2"
	"github.com/spf13/cobra"
)

// TrapResult represents one dispatched trap.
type TrapResult struct {
	Syndrome string            `json:"syndrome"`
	Category string            `json:"category"`
	Result   string            `json:"result"`
	Action   string            `json:"action"`
	Cause    string            `json:"cause,omitempty"`
	State    CPUState          `json:"state"`
	SysRegs  map[string]uint64 `json:"sysregs"`
	Error    string            `json:"error,omitempty"`
}

func init() {
	rootCmd.AddCommand(trapCmd)
	trapCmd.Flags().StringP("state", "s", "", "JSON file with the interrupted CPU state")
	trapCmd.Flags().StringSlice("sysreg", nil, "Initial guest system register as NAME=VALUE (repeatable)")
}

var trapCmd = &cobra.Command{
	Use:   "trap [ESR]",
	Short: "Dispatch one synchronous trap against a CPU state and return it as JSON",
	Long: `Dispatch one synchronous exception through the trap dispatcher.

The interrupted context is read from --state (the same JSON layout this
command prints) and the syndrome is the ESR_EL2 argument. Results are
output as JSON to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrap,
}

func runTrap(cmd *cobra.Command, args []string) error {
	esr, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("failed to parse ESR %q: %w", args[0], err)
	}

	var initialState CPUState
	if stateFile, _ := cmd.Flags().GetString("state"); stateFile != "" {
		stateData, err := os.ReadFile(stateFile)
		if err != nil {
			return fmt.Errorf("failed to read state file: %w", err)
		}
		if err := json.Unmarshal(stateData, &initialState); err != nil {
			return fmt.Errorf("failed to parse state JSON: %w", err)
		}
	}

	guest := el2.NewGuest(&el2.Frame{})
	if err := setCPUState(guest.Ctx, &initialState); err != nil {
		return err
	}
	sysregs, _ := cmd.Flags().GetStringSlice("sysreg")
	if err := setSysRegs(guest.SysRegs, sysregs); err != nil {
		return err
	}

	result, err := dispatchTrap(guest, el2.Syndrome(esr))
	if err != nil {
		result = &TrapResult{Error: err.Error()}
	}

	output, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	fmt.Println(string(output))
	return nil
}

func setSysRegs(f *el2.VSysRegFile, assigns []string) error {
	for _, a := range assigns {
		name, val, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return fmt.Errorf("invalid --sysreg %q (want NAME=VALUE)", a)
		}
		id, err := el2.ParseSysRegID(name)
		if err != nil {
			return err
		}
		v, err := strconv.ParseUint(val, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid --sysreg value %q: %w", val, err)
		}
		f.Set(id, v)
	}
	return nil
}

func dispatchTrap(guest *el2.Guest, s el2.Syndrome) (*TrapResult, error) {
	core, port, err := newSimCore()
	if err != nil {
		return nil, err
	}
	port.Write(el2.ESR_EL2, uint64(s))
	out, err := core.OnSync(guest)
	if err != nil {
		return nil, err
	}
	state, err := getCPUState(guest.Ctx)
	if err != nil {
		return nil, err
	}
	res := &TrapResult{
		Syndrome: out.Syndrome.String(),
		Category: out.Category.String(),
		Result:   out.Result.String(),
		Action:   out.Action.String(),
		State:    *state,
		SysRegs:  guest.SysRegs.Snapshot(),
	}
	if out.Cause != nil {
		res.Cause = out.Cause.Error()
	}
	return res, nil
}
