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
	"slices"

	"github.com/blacktop/go-el2"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(bootCmd)
	bootCmd.Flags().Bool("table", false, "Print every translation table entry")
	bootCmd.Flags().Bool("json", false, "Output registers and metrics as JSON")
}

// BootResult is the JSON form of a simulated boot.
type BootResult struct {
	State     string            `json:"mmu_state"`
	TableBase uint64            `json:"table_base"`
	Registers map[string]uint64 `json:"registers"`
	Writes    []string          `json:"writes"`
	Metrics   el2.Metrics       `json:"metrics"`
	Error     string            `json:"error,omitempty"`
}

var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Simulate EL2 boot: configure traps and bring up the MMU",
	RunE: func(cmd *cobra.Command, args []string) error {
		showTable, _ := cmd.Flags().GetBool("table")
		asJSON, _ := cmd.Flags().GetBool("json")

		core, port, err := newSimCore()
		if err != nil {
			return err
		}
		bootErr := core.Boot()

		res := BootResult{
			State:     core.MMU.State().String(),
			TableBase: core.MMU.Table().Base(),
			Registers: port.Snapshot(),
			Metrics:   el2.GetMetrics(),
		}
		for _, w := range port.Writes() {
			res.Writes = append(res.Writes, fmt.Sprintf("%s <- %#x", w.Reg, w.Value))
		}
		if bootErr != nil {
			res.Error = bootErr.Error()
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		fmt.Printf("mmu state:  %s\n", res.State)
		fmt.Printf("table base: %#x\n", res.TableBase)
		if bootErr != nil {
			fmt.Printf("error:      %v\n", bootErr)
		}
		fmt.Println("\nwrites:")
		for _, w := range res.Writes {
			fmt.Printf("  %s\n", w)
		}
		fmt.Println("\nregisters:")
		names := make([]string, 0, len(res.Registers))
		for name := range res.Registers {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Printf("  %-18s %#018x\n", name, res.Registers[name])
		}
		if showTable {
			fmt.Println("\ntable:")
			for i, d := range core.MMU.Table().Entries {
				fmt.Printf("  [%2d] va %#014x  %s\n", i, uint64(i)*el2.BlockSize, d)
			}
		}
		return bootErr
	},
}
