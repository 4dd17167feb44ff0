// Package x11 implements probe.Probe for X11 sessions using a direct
// X connection: the EWMH active-window property for the foreground
// process and the MIT-SCREEN-SAVER extension for idle time. The running
// process set comes from /proc.
package x11

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/screensaver"
	"github.com/jezek/xgb/xproto"
)

var atomNames = []string{
	"_NET_ACTIVE_WINDOW",
	"_NET_WM_PID",
}

// Probe holds a long-lived X connection. It re-dials once when a call
// fails on a dead connection before reporting the error to the caller.
type Probe struct {
	mu    sync.Mutex
	conn  *xgb.Conn
	root  xproto.Window
	atoms map[string]xproto.Atom
}

// New connects to the X server named by DISPLAY and initializes the
// screensaver extension.
func New() (*Probe, error) {
	p := &Probe{}
	if err := p.dial(); err != nil {
		return nil, err
	}
	return p, nil
}

// IsAvailable reports whether an X11 session appears to be present.
func IsAvailable() bool {
	return os.Getenv("DISPLAY") != ""
}

func (p *Probe) dial() error {
	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	if err := screensaver.Init(conn); err != nil {
		conn.Close()
		return fmt.Errorf("screensaver extension unavailable: %w", err)
	}

	atoms := make(map[string]xproto.Atom, len(atomNames))
	for _, name := range atomNames {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to intern atom %s: %w", name, err)
		}
		atoms[name] = reply.Atom
	}

	p.conn = conn
	p.root = xproto.Setup(conn).DefaultScreen(conn).Root
	p.atoms = atoms
	return nil
}

// redial tears down the current connection and dials again. Caller must
// hold p.mu.
func (p *Probe) redial() error {
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	return p.dial()
}

// ActiveProcessName returns the lower-cased process name of the window
// referenced by _NET_ACTIVE_WINDOW, or "" when no window is active or
// the window does not expose a PID.
func (p *Probe) ActiveProcessName() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name, err := p.activeProcessName()
	if err != nil {
		if rerr := p.redial(); rerr != nil {
			return "", err
		}
		return p.activeProcessName()
	}
	return name, nil
}

func (p *Probe) activeProcessName() (string, error) {
	win, err := p.activeWindow()
	if err != nil {
		return "", err
	}
	if win == 0 {
		return "", nil
	}

	pid, err := p.windowPID(win)
	if err != nil {
		return "", err
	}
	if pid == 0 {
		return "", nil
	}

	comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		// Window owner already exited between property reads.
		return "", nil
	}
	return strings.ToLower(strings.TrimSpace(string(comm))), nil
}

func (p *Probe) activeWindow() (xproto.Window, error) {
	data, err := p.property(p.root, p.atoms["_NET_ACTIVE_WINDOW"], xproto.AtomWindow)
	if err != nil {
		return 0, fmt.Errorf("failed to read _NET_ACTIVE_WINDOW: %w", err)
	}
	if len(data) < 4 {
		return 0, nil
	}
	return xproto.Window(binary.LittleEndian.Uint32(data)), nil
}

func (p *Probe) windowPID(win xproto.Window) (uint32, error) {
	data, err := p.property(win, p.atoms["_NET_WM_PID"], xproto.AtomCardinal)
	if err != nil {
		// The window may have been destroyed mid-query.
		return 0, nil
	}
	if len(data) < 4 {
		return 0, nil
	}
	return binary.LittleEndian.Uint32(data), nil
}

func (p *Probe) property(win xproto.Window, atom xproto.Atom, typ xproto.Atom) ([]byte, error) {
	reply, err := xproto.GetProperty(p.conn, false, win, atom, typ, 0, 4).Reply()
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

// IdleSeconds returns seconds since the last user input as reported by
// the MIT-SCREEN-SAVER extension.
func (p *Probe) IdleSeconds() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idle, err := p.idleSeconds()
	if err != nil {
		if rerr := p.redial(); rerr != nil {
			return 0, err
		}
		return p.idleSeconds()
	}
	return idle, nil
}

func (p *Probe) idleSeconds() (float64, error) {
	reply, err := screensaver.QueryInfo(p.conn, xproto.Drawable(p.root)).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to query idle time: %w", err)
	}
	return float64(reply.MsSinceUserInput) / 1000.0, nil
}

// RunningProcesses scans /proc for process names. Unreadable entries
// (processes that exited mid-scan, permission boundaries) are skipped.
func (p *Probe) RunningProcesses() ([]string, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("failed to read /proc: %w", err)
	}

	seen := make(map[string]struct{})
	for _, entry := range entries {
		if !entry.IsDir() || !isNumeric(entry.Name()) {
			continue
		}
		comm, err := os.ReadFile("/proc/" + entry.Name() + "/comm")
		if err != nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(string(comm)))
		if name != "" {
			seen[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Close shuts down the X connection.
func (p *Probe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	return nil
}
