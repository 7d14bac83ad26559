// Package processtest provides an in-memory process.Launcher for tests
package processtest

import (
	"fmt"
	"sync"
	"syscall"
)

// Launcher is a fake process.Launcher. Spawned processes live until Exit is
// called, or until they are signaled when ExitOnSignal is set.
type Launcher struct {
	// ExitOnSignal makes a signaled process exit immediately
	ExitOnSignal bool
	// SpawnErr, when set, is returned by Spawn
	SpawnErr error
	// MaxSpawns, when positive, makes Spawn fail once that many processes
	// have been spawned in total
	MaxSpawns int

	mu      sync.Mutex
	nextPID int
	live    map[int]bool
	exited  map[int]bool
	args    map[int][]string
	signals map[int][]syscall.Signal
	spawned int
}

// NewLauncher creates a fake launcher
func NewLauncher() *Launcher {
	return &Launcher{
		nextPID: 1000,
		live:    make(map[int]bool),
		exited:  make(map[int]bool),
		args:    make(map[int][]string),
		signals: make(map[int][]syscall.Signal),
	}
}

func (l *Launcher) Spawn(args []string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SpawnErr != nil {
		return 0, l.SpawnErr
	}
	if l.MaxSpawns > 0 && l.spawned >= l.MaxSpawns {
		return 0, fmt.Errorf("spawn limit of %d reached", l.MaxSpawns)
	}
	l.nextPID++
	pid := l.nextPID
	l.live[pid] = true
	l.args[pid] = append([]string(nil), args...)
	l.spawned++
	return pid, nil
}

func (l *Launcher) Signal(pid int, sig syscall.Signal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.live[pid] && !l.exited[pid] {
		return fmt.Errorf("no such process %d", pid)
	}
	l.signals[pid] = append(l.signals[pid], sig)
	if l.ExitOnSignal || sig == syscall.SIGKILL {
		l.exitLocked(pid)
	}
	return nil
}

func (l *Launcher) Reap(pid int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.live[pid] {
		return false, nil
	}
	// exited, or never ours
	delete(l.exited, pid)
	return true, nil
}

// Exit marks pid as exited, as if it had terminated on its own
func (l *Launcher) Exit(pid int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exitLocked(pid)
}

// ExitAll exits every live process
func (l *Launcher) ExitAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for pid := range l.live {
		l.exitLocked(pid)
	}
}

func (l *Launcher) exitLocked(pid int) {
	if l.live[pid] {
		delete(l.live, pid)
		l.exited[pid] = true
	}
}

// Spawned returns how many processes were started
func (l *Launcher) Spawned() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spawned
}

// Live returns how many processes have not exited
func (l *Launcher) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}

// Signals returns the signals delivered to pid
func (l *Launcher) Signals(pid int) []syscall.Signal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]syscall.Signal(nil), l.signals[pid]...)
}

// Signaled returns how many processes received sig
func (l *Launcher) Signaled(sig syscall.Signal) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, sigs := range l.signals {
		for _, s := range sigs {
			if s == sig {
				n++
				break
			}
		}
	}
	return n
}

// Args returns the arguments pid was started with
func (l *Launcher) Args(pid int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.args[pid]
}
