package procfs

import (
	"fmt"
	"io"
	"os"

	bufra "github.com/avvmoto/buf-readerat"
	"github.com/golang/glog"
	"golang.org/x/sys/unix"

	"github.com/pattyshack/elfinfo/elf"
)

const (
	vmPageSize = 0x1000

	// Default read buffer size for ProcessImage.
	DefaultReadBufferSize = 16 * vmPageSize
)

// ProcessMemory reads a live process' virtual memory via process_vm_readv.
// The offset passed to ReadAt is the absolute virtual address.
//
// NOTE: read permission is governed by ptrace (see ptrace_scope).
type ProcessMemory struct {
	Pid int
}

func NewProcessMemory(pid int) *ProcessMemory {
	return &ProcessMemory{
		Pid: pid,
	}
}

func (memory *ProcessMemory) ReadAt(data []byte, address int64) (int, error) {
	if address < 0 {
		return 0, fmt.Errorf("invalid address (%d)", address)
	}

	n, err := readVirtualMemory(memory.Pid, uintptr(address), data)
	glog.V(2).Infof(
		"read process %d memory [%#x, +%d): %d bytes (err=%v)",
		memory.Pid,
		address,
		len(data),
		n,
		err)

	if err != nil {
		// process_vm_readv returns -1 on failure.
		return 0, fmt.Errorf(
			"failed to read process %d memory at %#x: %w",
			memory.Pid,
			address,
			err)
	}

	if n < len(data) {
		return n, io.EOF
	}

	return n, nil
}

func readVirtualMemory(pid int, addr uintptr, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	localIovs := make([]unix.Iovec, 1)
	localIovs[0].Base = &data[0]
	localIovs[0].SetLen(len(data))

	var remoteIovs []unix.RemoteIovec

	remaining := len(data)

	// NOTE: process_vm_readv stops at the first iovec that fails, so remote
	// iovecs must not straddle page boundaries for a partial read to return
	// the readable prefix.
	if addr%vmPageSize != 0 {
		pageEndAddr := ((addr + vmPageSize - 1) / vmPageSize) * vmPageSize

		size := min(int(pageEndAddr-addr), remaining)

		remoteIovs = append(
			remoteIovs,
			unix.RemoteIovec{
				Base: addr,
				Len:  size,
			})
		remaining -= size
		addr += uintptr(size)
	}

	for remaining > 0 {
		size := min(remaining, vmPageSize)

		remoteIovs = append(
			remoteIovs,
			unix.RemoteIovec{
				Base: addr,
				Len:  size,
			})

		remaining -= size
		addr += uintptr(size)
	}

	return unix.ProcessVMReadv(pid, localIovs, remoteIovs, 0)
}

// LoadBase returns the difference between the runtime entry point (AT_ENTRY)
// and the file's link time entry point.  This is the value to add to the
// file's virtual addresses.
func LoadBase(auxv AuxiliaryVector, fileEntry uint64) (uint64, error) {
	entry, ok := auxv[AT_Entry]
	if !ok {
		return 0, fmt.Errorf("auxiliary vector has no AT_ENTRY")
	}

	if entry < fileEntry {
		return 0, fmt.Errorf(
			"runtime entry point (%#x) < file entry point (%#x)",
			entry,
			fileEntry)
	}

	return entry - fileEntry, nil
}

// ProcessImage is a process' main executable and its loaded image.
type ProcessImage struct {
	Pid     int
	Headers *elf.Headers
	elf.Image
}

// OpenProcessImage parses the process' executable (via /proc/<pid>/exe) and
// binds it to the process' memory, rebased by the load base derived from the
// auxiliary vector.
func OpenProcessImage(pid int, readBufferSize int) (*ProcessImage, error) {
	path := GetExecutableSymlinkPath(pid)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	headers, err := elf.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	auxv, err := GetAuxiliaryVector(pid)
	if err != nil {
		return nil, err
	}

	loadBase, err := LoadBase(auxv, headers.EntryPointAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to compute process %d load base: %w", pid, err)
	}

	glog.Infof("process %d's executable is loaded at base %#x", pid, loadBase)

	return &ProcessImage{
		Pid:     pid,
		Headers: headers,
		Image:   NewImage(NewProcessMemory(pid), loadBase, readBufferSize),
	}, nil
}

// NewImage returns an image backed by memory.  Reads are buffered when
// readBufferSize is positive.
func NewImage(
	memory io.ReaderAt,
	loadBase uint64,
	readBufferSize int,
) elf.Image {
	if readBufferSize > 0 {
		memory = bufra.NewBufReaderAt(memory, readBufferSize)
	}

	return elf.Image{
		Memory:   elf.NewReaderAddressSpace(memory),
		LoadBase: loadBase,
	}
}
