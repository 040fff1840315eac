// Package monitor keeps a debugging session's symbols synchronized with the
// set of shared libraries loaded inside the target. It locates the dynamic
// linker's r_debug bookkeeping structure, arms a single intercept at the
// linker's r_brk notification hook, and on every firing walks the live
// link_map list, loading symbols for any library the host debugger does not
// recognize yet.
package monitor

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Session tracks the linker hook for one debugged process. A Session is
// created when a target is attached and discarded on detach; the installed
// flag never resets within a session, so at most one intercept ever exists.
type Session struct {
	dbg     Debugger
	exePath string
	exeBias uint64
	log     zerolog.Logger

	rdebugAddr uint64
	hookAddr   uint64
	installed  bool

	// OnInstall, when set, runs once right after the intercept is armed.
	OnInstall func(brk uint64)
}

// NewSession prepares a monitor for the target whose primary executable is
// exePath, loaded with the given bias (0 for non-PIE).
func NewSession(dbg Debugger, exePath string, exeBias uint64, log zerolog.Logger) *Session {
	return &Session{
		dbg:     dbg,
		exePath: exePath,
		exeBias: exeBias,
		log:     log.With().Str("component", "solib-monitor").Logger(),
	}
}

// Installed reports whether the linker hook intercept has been armed.
func (s *Session) Installed() bool { return s.installed }

// HookAddr returns the r_brk address the intercept was armed at, 0 before
// installation.
func (s *Session) HookAddr() uint64 { return s.hookAddr }

// RDebugAddr returns the located address of r_debug, 0 until discovery
// succeeds.
func (s *Session) RDebugAddr() uint64 { return s.rdebugAddr }

// NotifyObjFile is the new-object-file notification handler. Early in
// process startup r_brk is still zero; the handler simply re-evaluates on
// every notification until the loader has finished its own bootstrap, then
// installs the intercept exactly once.
func (s *Session) NotifyObjFile() {
	if s.installed {
		return
	}

	if s.rdebugAddr == 0 {
		addr, err := LocateRDebug(s.dbg, s.exePath, s.exeBias)
		if err != nil {
			addr = s.lookupRDebugSymbol()
			if addr == 0 {
				s.log.Debug().Err(err).Msg("r_debug not locatable yet")
				return
			}
		}
		s.rdebugAddr = addr
		s.log.Debug().Str("r_debug", hexAddr(addr)).Msg("located r_debug")
	}

	rd, err := ReadRDebug(s.dbg, s.rdebugAddr)
	if err != nil {
		s.log.Debug().Err(err).Msg("r_debug unreadable")
		return
	}
	if rd.Brk == 0 {
		// Loader bootstrap not finished; the next notification retries.
		return
	}

	if err := s.dbg.InstallIntercept(rd.Brk, s.onBrk); err != nil {
		s.log.Warn().Err(err).Str("r_brk", hexAddr(rd.Brk)).Msg("intercept install failed")
		return
	}
	s.installed = true
	s.hookAddr = rd.Brk
	s.log.Info().Str("r_brk", hexAddr(rd.Brk)).Msg("linker hook armed")

	if s.OnInstall != nil {
		s.OnInstall(rd.Brk)
	}

	// Catch up on anything dlopen'd before the hook existed.
	s.Sync()
}

// symbolResolver is implemented by hosts whose symbol table can answer name
// lookups. Used as a fallback when the .dynamic scan finds no DT_DEBUG (some
// loaders publish r_debug only through the ld.so export).
type symbolResolver interface {
	ResolveSymbol(name string) (uint64, error)
}

func (s *Session) lookupRDebugSymbol() uint64 {
	res, ok := s.dbg.(symbolResolver)
	if !ok {
		return 0
	}
	addr, err := res.ResolveSymbol("_r_debug")
	if err != nil {
		return 0
	}
	return addr
}

// onBrk runs once per hook firing. The linker fires both before and after
// it mutates the list; both walks are harmless. The target always resumes.
func (s *Session) onBrk() bool {
	s.Sync()
	return false
}

// Sync walks the current link map once and loads symbols for every library
// the debugger does not already know. The walk is a best-effort single
// pass; nothing is cached across firings because the list is only
// guaranteed consistent while the target is stopped at the hook.
func (s *Session) Sync() {
	if s.rdebugAddr == 0 {
		return
	}
	rd, err := ReadRDebug(s.dbg, s.rdebugAddr)
	if err != nil {
		s.log.Debug().Err(err).Msg("r_debug unreadable during sync")
		return
	}

	it := NewLinkMapIter(s.dbg, rd.Map)
	for {
		ent, ok := it.Next()
		if !ok {
			break
		}
		if isKnown(s.dbg, filepath.Base(ent.Path)) {
			continue
		}
		s.log.Debug().Str("lib", ent.Path).Str("bias", hexAddr(ent.Bias)).Msg("unrecognized library")
		s.loadSymbols(ent.Path, ent.Bias)
	}
}

// Libraries walks the link map once and returns the filtered entries, for
// display purposes. Returns nil before r_debug has been located.
func (s *Session) Libraries() []LibEntry {
	if s.rdebugAddr == 0 {
		return nil
	}
	rd, err := ReadRDebug(s.dbg, s.rdebugAddr)
	if err != nil {
		return nil
	}
	var libs []LibEntry
	it := NewLinkMapIter(s.dbg, rd.Map)
	for {
		ent, ok := it.Next()
		if !ok {
			return libs
		}
		libs = append(libs, ent)
	}
}

func hexAddr(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}
