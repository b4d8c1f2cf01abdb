package el2

import (
	"fmt"
	"os"
	"strconv"
)

// Error codes for the EL2 core. The Hypervisor.framework hv_return_t values
// used by the hosted backend share this space (0xFAE940xx).
const (
	CodeSuccess             uint32 = 0x00000000
	CodeUnsupportedHardware uint32 = 0x00E20001
	CodeUnknownTrap         uint32 = 0x00E20002
	CodeUnknownInstruction  uint32 = 0x00E20003
	CodeInvalidState        uint32 = 0x00E20004
	CodeMisalignedTable     uint32 = 0x00E20005
	CodeIndexOutOfRange     uint32 = 0x00E20006
	CodeTranslationFault    uint32 = 0x00E20007
	CodeAccessFlagFault     uint32 = 0x00E20008
	CodePermissionFault     uint32 = 0x00E20009
	CodeInvalidConfig       uint32 = 0x00E2000A
	CodeValidationFailed    uint32 = 0x00E2000B

	HV_ERROR               uint32 = 0xFAE94001
	HV_BUSY                uint32 = 0xFAE94002
	HV_BAD_ARGUMENT        uint32 = 0xFAE94003
	HV_ILLEGAL_GUEST_STATE uint32 = 0xFAE94004
	HV_NO_RESOURCES        uint32 = 0xFAE94005
	HV_NO_DEVICE           uint32 = 0xFAE94006
	HV_DENIED              uint32 = 0xFAE94007
	HV_EXISTS              uint32 = 0xFAE94008
	HV_UNSUPPORTED         uint32 = 0xFAE9400F
)

// Error is the error type returned by the core. Two errors with the same
// Code compare equal under errors.Is.
type Error struct {
	Code    uint32
	message string
}

func (e *Error) Error() string {
	if e.message != "" {
		return e.message
	}
	if isProductionEnv() {
		return e.sanitizedError()
	}
	return e.detailedError()
}

// Is reports whether target is an *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) detailedError() string {
	switch e.Code {
	case CodeSuccess:
		return "el2: success"
	case CodeUnsupportedHardware:
		return "el2: unsupported hardware (64KiB translation granule not reported by ID_AA64MMFR0_EL1)"
	case CodeUnknownTrap:
		return "el2: unknown trap (no category registered for exception class)"
	case CodeUnknownInstruction:
		return "el2: unknown instruction (no emulation entry matches syndrome ISS)"
	case CodeInvalidState:
		return "el2: invalid state (translation setup step called out of order)"
	case CodeMisalignedTable:
		return "el2: misaligned table (base must be 512-byte aligned)"
	case CodeIndexOutOfRange:
		return "el2: index out of range (table has 64 entries)"
	case CodeTranslationFault:
		return "el2: translation fault (descriptor not valid)"
	case CodeAccessFlagFault:
		return "el2: access flag fault (descriptor AF clear)"
	case CodePermissionFault:
		return "el2: permission fault (write to read-only block)"
	case CodeInvalidConfig:
		return "el2: invalid configuration"
	case CodeValidationFailed:
		return "el2: validation failed (translation did not behave as programmed)"
	case HV_ERROR:
		return "hv: general error (HV_ERROR) - check system requirements and API usage"
	case HV_BUSY:
		return "hv: resource busy (HV_BUSY) - another operation is in progress"
	case HV_BAD_ARGUMENT:
		return "hv: invalid argument (HV_BAD_ARGUMENT) - check parameter values and alignment"
	case HV_ILLEGAL_GUEST_STATE:
		return "hv: illegal guest state (HV_ILLEGAL_GUEST_STATE) - guest CPU state is invalid"
	case HV_NO_RESOURCES:
		return "hv: insufficient resources (HV_NO_RESOURCES) - system memory or limits exceeded"
	case HV_NO_DEVICE:
		return "hv: device not found (HV_NO_DEVICE) - hardware virtualization unavailable"
	case HV_DENIED:
		return "hv: access denied (HV_DENIED) - missing entitlement 'com.apple.security.hypervisor' or insufficient privileges"
	case HV_EXISTS:
		return "hv: resource exists (HV_EXISTS) - VM or vCPU already created"
	case HV_UNSUPPORTED:
		return "hv: operation unsupported (HV_UNSUPPORTED) - feature not available on this hardware/OS"
	default:
		return fmt.Sprintf("el2: unknown error code 0x%08x", e.Code)
	}
}

func (e *Error) sanitizedError() string {
	switch e.Code {
	case CodeSuccess:
		return "el2: success"
	case CodeUnsupportedHardware:
		return "el2: unsupported hardware"
	case CodeUnknownTrap:
		return "el2: unknown trap"
	case CodeUnknownInstruction:
		return "el2: unknown instruction"
	case CodeInvalidState:
		return "el2: invalid state"
	case CodeMisalignedTable, CodeIndexOutOfRange, CodeInvalidConfig:
		return "el2: invalid argument"
	case CodeTranslationFault, CodeAccessFlagFault, CodePermissionFault, CodeValidationFailed:
		return "el2: translation error"
	case HV_DENIED:
		return "hv: access denied"
	case HV_UNSUPPORTED:
		return "hv: operation unsupported"
	default:
		return "el2: hypervisor error"
	}
}

// isProductionEnv checks if we're running in production environment
func isProductionEnv() bool {
	env := os.Getenv("HV_ENV")
	if env == "production" || env == "prod" {
		return true
	}
	if debug := os.Getenv("HV_DEBUG"); debug != "" {
		if val, err := strconv.ParseBool(debug); err == nil && !val {
			return true
		}
	}
	return false
}

var (
	ErrUnsupportedHardware = &Error{Code: CodeUnsupportedHardware}
	ErrUnknownTrap         = &Error{Code: CodeUnknownTrap}
	ErrUnknownInstruction  = &Error{Code: CodeUnknownInstruction}
	ErrInvalidState        = &Error{Code: CodeInvalidState}
	ErrMisalignedTable     = &Error{Code: CodeMisalignedTable}
	ErrIndexOutOfRange     = &Error{Code: CodeIndexOutOfRange}
	ErrTranslationFault    = &Error{Code: CodeTranslationFault}
	ErrAccessFlagFault     = &Error{Code: CodeAccessFlagFault}
	ErrPermissionFault     = &Error{Code: CodePermissionFault}
	ErrInvalidConfig       = &Error{Code: CodeInvalidConfig}
	ErrValidationFailed    = &Error{Code: CodeValidationFailed}

	ErrVMClosed        = &Error{Code: HV_ERROR, message: "hv: VM is closed"}
	ErrVCPUClosed      = &Error{Code: HV_ERROR, message: "hv: VCPU is closed"}
	ErrVMAlreadyActive = &Error{Code: HV_BUSY, message: "hv: VM already active in this process"}
	ErrNotSupported    = &Error{Code: HV_UNSUPPORTED, message: "hypervisor: not supported on this platform"}
)
