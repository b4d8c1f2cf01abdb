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
	"io"
	"os"

	"github.com/blacktop/go-el2"
	"github.com/blacktop/go-el2/cmd/hv/cmd/utils"
	"github.com/blacktop/go-macho"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("macho", false, "Treat FILE as a Mach-O and run one function from it")
	runCmd.Flags().Uint64P("addr", "a", 0, "Mach-O function address (0 = use entry point)")
	runCmd.Flags().IntP("mem-size", "m", 0x10000, "Memory size to allocate (bytes)")
	runCmd.Flags().Uint64P("base-addr", "b", 0x4000, "Guest physical address code is loaded at")
	runCmd.Flags().Uint64P("stack", "s", 0x8000, "Stack pointer address (within allocated memory)")
	runCmd.Flags().Int("max-exits", 64, "Stop after this many serviced traps (0 = no limit)")
}

var runCmd = &cobra.Command{
	Use:   "run [FILE]",
	Short: "Run ARM64 code under Hypervisor.framework with traps serviced by the EL2 dispatcher",
	Long: `Run ARM64 code in a Hypervisor.framework guest. Every exception exit is
decoded and dispatched exactly as the EL2 core would: HVC register-access
calls are emulated against the guest's virtual system registers, anything
else gets an undefined-instruction fault (or is resumed, per config).

Code can be provided as a raw binary file argument, stdin, or a Mach-O
function with --macho. A brk #0 is appended to stop the guest.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := el2.Supported()
		if err != nil || !ok {
			return fmt.Errorf("hypervisor not supported: %v", err)
		}

		isMacho, _ := cmd.Flags().GetBool("macho")
		addr, _ := cmd.Flags().GetUint64("addr")
		memSize, _ := cmd.Flags().GetInt("mem-size")
		baseAddr, _ := cmd.Flags().GetUint64("base-addr")
		stackPtr, _ := cmd.Flags().GetUint64("stack")
		maxExits, _ := cmd.Flags().GetInt("max-exits")

		page := unix.Getpagesize()
		if memSize%page != 0 {
			return fmt.Errorf("mem-size must be a multiple of page size (%d bytes)", page)
		}
		if stackPtr < baseAddr || stackPtr >= baseAddr+uint64(memSize) {
			return fmt.Errorf("stack pointer 0x%x must be within memory range 0x%x-0x%x",
				stackPtr, baseAddr, baseAddr+uint64(memSize))
		}

		var code []byte
		switch {
		case isMacho:
			if len(args) == 0 {
				return fmt.Errorf("--macho requires a file argument")
			}
			if code, err = loadMachOFunction(args[0], addr); err != nil {
				return err
			}
		case len(args) > 0:
			if code, err = os.ReadFile(args[0]); err != nil {
				return fmt.Errorf("failed to read code file: %w", err)
			}
		default:
			if code, err = io.ReadAll(os.Stdin); err != nil {
				return fmt.Errorf("failed to read from stdin: %w", err)
			}
		}
		if len(code) == 0 {
			return fmt.Errorf("no code provided")
		}
		code = append(code, 0x00, 0x00, 0x20, 0xd4) // brk #0

		return runGuest(code, baseAddr, stackPtr, memSize, maxExits)
	},
}

// loadMachOFunction returns the bytes of the function containing addr, or of
// the LC_MAIN entry point when addr is 0.
func loadMachOFunction(path string, addr uint64) ([]byte, error) {
	m, err := macho.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Mach-O file: %w", err)
	}
	defer m.Close()

	if addr == 0 {
		main := m.GetLoadsByName("LC_MAIN")
		if len(main) == 0 {
			return nil, fmt.Errorf("failed to find LC_MAIN in target - use --addr to specify function address")
		}
		addr = main[0].(*macho.EntryPoint).EntryOffset + m.GetBaseAddress()
	}

	fn, err := m.GetFunctionForVMAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to find function at address 0x%x: %w", addr, err)
	}
	log.WithFields(logrus.Fields{
		"name":  fn.Name,
		"start": fmt.Sprintf("%#x", fn.StartAddr),
		"end":   fmt.Sprintf("%#x", fn.EndAddr),
	}).Info("loading function")

	instrs := make([]byte, fn.EndAddr-fn.StartAddr)
	if _, err := m.ReadAtAddr(instrs, fn.StartAddr); err != nil {
		return nil, fmt.Errorf("failed to read function bytes: %w", err)
	}
	return instrs, nil
}

func runGuest(code []byte, baseAddr, stackPtr uint64, memSize, maxExits int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	core, err := el2.NewCore(cfg, el2.NewMemPort(nil), &el2.Table{}, log)
	if err != nil {
		return err
	}

	vm, err := el2.NewVM()
	if err != nil {
		return fmt.Errorf("failed to create VM: %w", err)
	}
	defer vm.Close()

	vcpu, err := vm.NewVCPU()
	if err != nil {
		return fmt.Errorf("failed to create vCPU: %w", err)
	}
	defer vcpu.Close()

	hostMem, err := unix.Mmap(-1, 0, memSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return fmt.Errorf("failed to allocate memory: %w", err)
	}
	defer unix.Munmap(hostMem)

	if len(code) > len(hostMem) {
		return fmt.Errorf("code size (%d) exceeds memory size (%d)", len(code), len(hostMem))
	}
	copy(hostMem, code)

	if err := vm.Map(hostMem, baseAddr, el2.MemRead|el2.MemWrite|el2.MemExec); err != nil {
		return fmt.Errorf("failed to map memory: %w", err)
	}
	defer vm.Unmap(baseAddr, uint64(len(hostMem)))

	if err := vcpu.SetReg(el2.RegSP, stackPtr); err != nil {
		return fmt.Errorf("failed to set SP: %w", err)
	}
	if err := vcpu.SetPC(baseAddr); err != nil {
		return fmt.Errorf("failed to set PC: %w", err)
	}

	sysregs := el2.NewVSysRegFile()
	sess, err := el2.RunGuest(vcpu, core.Dispatcher, sysregs, maxExits, log)
	if err != nil {
		return fmt.Errorf("guest run failed: %w", err)
	}

	state, err := getCPUState(vcpu)
	if err != nil {
		return fmt.Errorf("failed to get final state: %w", err)
	}

	fmt.Printf("\n=== Execution Results ===\n")
	fmt.Printf("Exit Reason: %v (esr=%#x)\n", sess.Last.Reason, sess.Last.ESR)
	for i, out := range sess.Outcomes {
		fmt.Printf("  trap %-3d %s -> %s", i, out.Syndrome, out.Action)
		if out.Cause != nil {
			fmt.Printf(" (%v)", out.Cause)
		}
		fmt.Println()
	}
	fmt.Printf("\nRegisters:\n")
	fmt.Printf("  X0=0x%x  X1=0x%x  X2=0x%x  X3=0x%x\n", state.X0, state.X1, state.X2, state.X3)
	fmt.Printf("  PC=0x%x  SP=0x%x  FP=0x%x  LR=0x%x\n", state.PC, state.SP, state.FP, state.LR)
	if snap := sysregs.Snapshot(); len(snap) > 0 {
		fmt.Printf("\nVirtual system registers:\n")
		for _, name := range sysregs.Names() {
			fmt.Printf("  %-16s %#x\n", name, snap[name])
		}
	}

	printStackContents(hostMem, baseAddr, stackPtr, state.SP)
	return nil
}

// printStackContents displays the stack around the initial SP.
func printStackContents(mem []byte, baseAddr, initialSP, finalSP uint64) {
	fmt.Printf("\n=== Stack Analysis ===\n")

	stackStart := initialSP - baseAddr
	displayStart := stackStart - min(stackStart, uint64(64))
	displayEnd := min(stackStart+64, uint64(len(mem)))

	fmt.Printf("Stack change: %d bytes\n", int64(finalSP)-int64(initialSP))
	fmt.Printf("Annotations: ISP=Initial SP, FSP=Final SP, STK=Stack Area\n\n")

	for offset := displayStart; offset < displayEnd; offset += 16 {
		addr := baseAddr + offset
		switch {
		case addr == initialSP:
			fmt.Printf("ISP> ")
		case addr == finalSP:
			fmt.Printf("FSP> ")
		case addr >= finalSP && addr < initialSP:
			fmt.Printf("STK> ")
		default:
			fmt.Printf("     ")
		}
		end := min(offset+16, displayEnd)
		fmt.Print(utils.HexDump(mem[offset:end], addr))
	}
}
