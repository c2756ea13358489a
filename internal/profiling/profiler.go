// Package profiling starts Go's runtime profilers for the hidden
// --profile-* CLI flags and flushes them when the command finishes.
package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Options selects which profiles a Session collects. Empty paths are off.
type Options struct {
	// CPUPath receives a pprof CPU profile sampled over the whole run.
	CPUPath string
	// HeapPath receives a heap snapshot taken at Stop, after a forced GC.
	HeapPath string
	// TracePath receives a runtime execution trace.
	TracePath string
}

// Enabled reports whether any profile output was requested.
func (o Options) Enabled() bool {
	return o.CPUPath != "" || o.HeapPath != "" || o.TracePath != ""
}

// A Session owns the open profile outputs for one command run.
type Session struct {
	opts      Options
	cpuFile   *os.File
	traceFile *os.File
}

// Start opens the requested outputs and begins sampling. On failure it
// unwinds whatever already started, so a half-configured session never
// leaks into the command run.
func Start(opts Options) (*Session, error) {
	s := &Session{opts: opts}

	if opts.CPUPath != "" {
		f, err := os.Create(opts.CPUPath)
		if err != nil {
			return nil, fmt.Errorf("create cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("start cpu profile: %w", err)
		}
		s.cpuFile = f
	}

	if opts.TracePath != "" {
		f, err := os.Create(opts.TracePath)
		if err != nil {
			s.stopSampling()
			return nil, fmt.Errorf("create trace: %w", err)
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			s.stopSampling()
			return nil, fmt.Errorf("start trace: %w", err)
		}
		s.traceFile = f
	}

	return s, nil
}

// Stop flushes every active profile. The heap snapshot is written here so
// it reflects the command's allocations; a GC runs first so dead objects
// don't inflate the numbers. Stop is idempotent.
func (s *Session) Stop() error {
	s.stopSampling()

	if s.opts.HeapPath == "" {
		return nil
	}
	path := s.opts.HeapPath
	s.opts.HeapPath = ""

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create heap profile: %w", err)
	}
	defer func() { _ = f.Close() }()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("write heap profile: %w", err)
	}
	return nil
}

func (s *Session) stopSampling() {
	if s.cpuFile != nil {
		pprof.StopCPUProfile()
		_ = s.cpuFile.Close()
		s.cpuFile = nil
	}
	if s.traceFile != nil {
		trace.Stop()
		_ = s.traceFile.Close()
		s.traceFile = nil
	}
}
