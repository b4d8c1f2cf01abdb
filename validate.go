package el2

import (
	"bytes"
	"fmt"
)

var (
	pingMsg = []byte("Ping!")
	pongMsg = []byte("Pong!")
)

// ValidateAliasing checks that the installed table is live by aliasing the
// block after va onto va's physical block, exchanging a message through the
// alias, and restoring the entry. The MMU must be enabled and va's block
// must not be the last one.
func ValidateAliasing(m *MMU, as *AddressSpace, va uint64) error {
	if m.State() != Enabled {
		return fmt.Errorf("validate aliasing in state %s: %w", m.State(), ErrInvalidState)
	}
	i := Index(va)
	if i+1 >= TableEntries {
		return fmt.Errorf("va %#x is in the last block, no room for an alias: %w", va, ErrIndexOutOfRange)
	}
	alias := va + BlockSize

	if err := as.Write(va, pingMsg); err != nil {
		return fmt.Errorf("failed to write %q at %#x: %w", pingMsg, va, err)
	}

	prev, err := m.SetEntry(i+1, m.Table().Entries[i])
	if err != nil {
		return err
	}
	restored := false
	defer func() {
		if !restored {
			restoreEntry(m, i+1, prev)
		}
	}()

	got := make([]byte, len(pingMsg))
	if err := as.Read(alias, got); err != nil {
		return fmt.Errorf("failed to read alias %#x: %w", alias, err)
	}
	if !bytes.Equal(got, pingMsg) {
		return fmt.Errorf("alias %#x read %q, want %q: %w", alias, got, pingMsg, ErrValidationFailed)
	}

	if err := as.Write(alias, pongMsg); err != nil {
		return fmt.Errorf("failed to write %q at alias %#x: %w", pongMsg, alias, err)
	}
	if err := as.Read(va, got); err != nil {
		return fmt.Errorf("failed to read %#x: %w", va, err)
	}
	if !bytes.Equal(got, pongMsg) {
		return fmt.Errorf("%#x read %q after write through alias, want %q: %w", va, got, pongMsg, ErrValidationFailed)
	}

	if _, err := m.SetEntry(i+1, prev); err != nil {
		return err
	}
	restored = true

	if err := as.Read(alias, got); err != nil {
		// original entry was invalid; the alias faults again
		return nil
	}
	if bytes.Equal(got, pongMsg) {
		return fmt.Errorf("alias %#x still reads %q after restore: %w", alias, got, ErrValidationFailed)
	}
	return nil
}

func restoreEntry(m *MMU, i int, d Descriptor) {
	if _, err := m.SetEntry(i, d); err != nil {
		m.log.WithError(err).WithField("index", i).Error("failed to restore table entry")
	}
}
