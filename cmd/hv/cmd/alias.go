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
	"github.com/blacktop/go-el2/cmd/hv/cmd/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(aliasCmd)
	aliasCmd.Flags().Uint64P("addr", "a", 0x10000, "Virtual address whose block is aliased")
}

var aliasCmd = &cobra.Command{
	Use:   "alias",
	Short: "Boot the simulated core and check the translation table by aliasing a block",
	RunE: func(cmd *cobra.Command, args []string) error {
		va, _ := cmd.Flags().GetUint64("addr")

		core, _, err := newSimCore()
		if err != nil {
			return err
		}
		if err := core.Boot(); err != nil {
			return err
		}

		mem := el2.NewPhysMem()
		defer mem.Close()
		as := el2.NewAddressSpace(core.MMU, mem)

		if err := el2.ValidateAliasing(core.MMU, as, va); err != nil {
			return fmt.Errorf("aliasing check failed: %w", err)
		}
		fmt.Printf("aliasing check passed: block %d aliased at %#x and restored\n", el2.Index(va), va+el2.BlockSize)

		buf := make([]byte, 16)
		for _, addr := range []uint64{va, va + el2.BlockSize} {
			if err := as.Read(addr, buf); err != nil {
				fmt.Printf("%#x: %v\n", addr, err)
				continue
			}
			fmt.Print(utils.HexDump(buf, addr))
		}
		log.WithField("frames", mem.Frames()).Debug("simulated memory")
		return nil
	},
}
