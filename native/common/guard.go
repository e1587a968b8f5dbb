package common

import "errors"

var ErrModulePaused = errors.New("module paused")

const (
	// ModuleLending names the lending pool for pause switches.
	ModuleLending = "lending"
	// ModuleReputation names the reputation registry for pause switches.
	ModuleReputation = "reputation"
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// StaticPauses is a fixed pause set, typically loaded from configuration.
type StaticPauses map[string]bool

// IsPaused implements PauseView.
func (s StaticPauses) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	return s[module]
}
