package monitor

// loadSymbols asks the debugger to ingest symbols for the library at path,
// anchored at the library's load bias plus its unlinked .text address.
// Every failure is discarded on purpose: symbol loading is a convenience
// and one unreadable or already-registered library must not stall the rest
// of the traversal, let alone the debugging session.
func (s *Session) loadSymbols(path string, bias uint64) {
	textAddr, ok := TextSectionAddr(path)
	if !ok {
		s.log.Debug().Str("lib", path).Msg("no readable .text section, skipping")
		return
	}
	if err := s.dbg.AddSymbolFile(path, bias+textAddr); err != nil {
		s.log.Debug().Err(err).Str("lib", path).Msg("symbol ingestion rejected")
	}
}
