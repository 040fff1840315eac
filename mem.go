package main

import (
	"encoding/binary"
	"errors"

	"golang.org/x/sys/unix"
)

// maxCString caps foreign string reads; l_name paths are far shorter.
const maxCString = 4096

func (dbger *TypeDbg) GetMemory(n uint, addr uintptr) ([]byte, error) {
	return doSyscall(dbger.rpc, func() ([]byte, error) {
		mem := make([]byte, n)
		count, err := unix.PtracePeekData(dbger.pid, addr, mem)
		if err != nil {
			return nil, err
		}
		if uint(count) != n {
			Printf("cannot read 0x%016x", uint64(addr)+uint64(count))
		}
		return mem, nil
	})
}

func (dbger *TypeDbg) SetMemory(data []byte, addr uintptr) error {
	_, err := doSyscall(dbger.rpc, func() (struct{}, error) {
		count, err := unix.PtracePokeData(dbger.pid, addr, data)
		if err != nil {
			return struct{}{}, err
		}
		if count != len(data) {
			Printf("cannot write 0x%016x", uint64(addr)+uint64(count))
		}
		return struct{}{}, nil
	})

	return err
}

// ReadPointer reads one little-endian machine word from the target. This is
// the typed read the solib monitor walks r_debug and link_map with.
func (dbger *TypeDbg) ReadPointer(addr uint64) (uint64, error) {
	mem, err := dbger.GetMemory(8, uintptr(addr))
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(mem), nil
}

// ReadCString reads a NUL-terminated string out of the target, one word at
// a time so a string ending near an unmapped page does not fail the read.
func (dbger *TypeDbg) ReadCString(addr uint64) (string, error) {
	var out []byte
	for len(out) < maxCString {
		chunk, err := dbger.GetMemory(8, uintptr(addr)+uintptr(len(out)))
		if err != nil {
			if len(out) > 0 {
				break
			}
			return "", err
		}
		for _, b := range chunk {
			if b == 0 {
				return string(out), nil
			}
			out = append(out, b)
		}
	}
	if len(out) >= maxCString {
		return "", errors.New("unterminated string in target memory")
	}
	return string(out), nil
}
