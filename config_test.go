package el2

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}
	if p, _ := cfg.Policy(); p != PolicyInjectFault {
		t.Errorf("Policy() = %s, want fault", p)
	}
	if ids, _ := cfg.SysRegIDs(); len(ids) != 0 {
		t.Errorf("SysRegIDs() = %v, want none", ids)
	}
}

func TestParseConfig(t *testing.T) {
	data := []byte(`
unknown_trap: resume
route_sysreg_traps: true
trapped_sysregs: [SCTLR_EL1, S3_0_C2_C0_2]
table_base: 0x100000
registers:
  ID_AA64MMFR0_EL1: 0x5
  hcr_el2: 0x80000000
log_level: debug
`)
	cfg, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if p, _ := cfg.Policy(); p != PolicyResume {
		t.Errorf("Policy() = %s", p)
	}
	ids, _ := cfg.SysRegIDs()
	if diff := cmp.Diff([]SysRegID{SCTLR_EL1, TCR_EL1}, ids); diff != "" {
		t.Errorf("SysRegIDs() mismatch (-want +got):\n%s", diff)
	}
	regs, _ := cfg.InitialRegisters()
	if diff := cmp.Diff(map[SysReg]uint64{ID_AA64MMFR0_EL1: 5, HCR_EL2: 0x80000000}, regs); diff != "" {
		t.Errorf("InitialRegisters() mismatch (-want +got):\n%s", diff)
	}
	if cfg.TableBase != 0x100000 {
		t.Errorf("TableBase = %#x", cfg.TableBase)
	}
	if lvl, _ := cfg.Level(); lvl != logrus.DebugLevel {
		t.Errorf("Level() = %s", lvl)
	}
}

func TestConfigRouteDefaultsToTVMSet(t *testing.T) {
	cfg, err := ParseConfig([]byte("route_sysreg_traps: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	ids, _ := cfg.SysRegIDs()
	if diff := cmp.Diff(TVMRegisters, ids); diff != "" {
		t.Errorf("SysRegIDs() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseConfigInvalid(t *testing.T) {
	tests := map[string]string{
		"policy":     "unknown_trap: halt\n",
		"sysreg":     "trapped_sysregs: [NOPE_EL1]\n",
		"register":   "registers: {VTTBR_EL2: 1}\n",
		"table base": "table_base: 0x80010\n",
		"log level":  "log_level: loud\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(data)); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("ParseConfig() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
	if _, err := ParseConfig([]byte("unknown_trap: [")); err == nil || errors.Is(err, ErrInvalidConfig) {
		t.Errorf("malformed YAML error = %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "el2.yaml")
	if err := os.WriteFile(path, []byte("unknown_trap: resume\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.UnknownTrap != "resume" || cfg.TableBase != DefaultTableBase {
		t.Errorf("LoadConfig() = %+v", cfg)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfig(missing) should fail")
	}
}
