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
	"os"

	"github.com/blacktop/go-el2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool

	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:           "hv",
	Short:         "Inspect, simulate and host the EL2 trap/MMU core",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		level, _ := cfg.Level() // validated by loadConfig
		if verbose {
			level = logrus.DebugLevel
		}
		log.SetLevel(level)
		return nil
	},
}

func init() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Enable debug logging")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func loadConfig() (*el2.Config, error) {
	if cfgFile == "" {
		return el2.DefaultConfig(), nil
	}
	cfg, err := el2.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// newSimCore builds a core over an in-memory register file seeded from the
// config.
func newSimCore() (*el2.Core, *el2.MemPort, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return newSimCoreFrom(cfg)
}

func newSimCoreFrom(cfg *el2.Config) (*el2.Core, *el2.MemPort, error) {
	regs, err := cfg.InitialRegisters()
	if err != nil {
		return nil, nil, err
	}
	table, err := el2.NewTable(cfg.TableBase)
	if err != nil {
		return nil, nil, err
	}
	port := el2.NewMemPort(regs)
	core, err := el2.NewCore(cfg, port, table, log)
	if err != nil {
		return nil, nil, err
	}
	return core, port, nil
}
