package monitor

// TargetMemory reads typed values out of the stopped target's address space.
// Reads are only valid while the target is stopped; the monitor is always
// driven from the debugger's own event callbacks, so that holds by
// construction.
type TargetMemory interface {
	ReadPointer(addr uint64) (uint64, error)
	ReadCString(addr uint64) (string, error)
}

// Interceptor installs a callback that runs whenever control in the target
// reaches addr. The callback reports whether the target should stay halted;
// the monitor always answers false.
type Interceptor interface {
	InstallIntercept(addr uint64, onHit func() bool) error
}

// SymbolIngester loads symbol information from the object file at path as if
// its code section were mapped starting at textAddr.
type SymbolIngester interface {
	AddSymbolFile(path string, textAddr uint64) error
}

// ObjectFile is one object file the host debugger already associates with
// the target. Path may be empty for internally synthesized entries.
type ObjectFile struct {
	Path string
	Base uint64
}

// ObjectLister reports the debugger's current object files. By convention
// index 0 is the primary executable.
type ObjectLister interface {
	ObjectFiles() []ObjectFile
}

// Debugger is the full host-debugger surface the monitor depends on.
type Debugger interface {
	TargetMemory
	Interceptor
	SymbolIngester
	ObjectLister
}
