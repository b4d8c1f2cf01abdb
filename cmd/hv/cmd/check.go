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
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/blacktop/go-el2"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Uint64("mmfr0", 0, "ID_AA64MMFR0_EL1 value to check instead of the configured one")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check Hypervisor.framework support and 64KiB granule support",
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := el2.Supported()
		switch {
		case errors.Is(err, el2.ErrNotSupported):
			fmt.Println("hv support: n/a (darwin/arm64 only)")
		case err != nil:
			fmt.Printf("hv support: error: %v\n", err)
		default:
			fmt.Printf("hv support: %v\n", ok)
		}

		if exe, _ := os.Executable(); exe != "" {
			out, _ := exec.Command("codesign", "-dv", "--entitlements", "-", exe).CombinedOutput()
			entOK := strings.Contains(string(out), "com.apple.security.hypervisor")
			fmt.Printf("entitlements: hypervisor=%v\n", entOK)
		} else {
			fmt.Println("entitlements: unknown (executable path not found)")
		}

		core, port, err := newSimCore()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("mmfr0") {
			v, _ := cmd.Flags().GetUint64("mmfr0")
			port.Write(el2.ID_AA64MMFR0_EL1, v)
		}
		fmt.Printf("current el: %d\n", el2.CurrentExceptionLevel(port))
		switch err := core.Boot(); {
		case errors.Is(err, el2.ErrUnsupportedHardware):
			fmt.Println("64KiB granule: unsupported")
		case err != nil:
			return err
		default:
			fmt.Println("64KiB granule: supported")
		}
		return nil
	},
}
