package serial

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// PTY is the master side of a pseudo-terminal. The host opens the slave
// through a symlink, e.g. /tmp/stepcore_mcu.
type PTY struct {
	master *os.File
	slave  int
	name   string
	link   string
	closed bool
}

// OpenPTY creates a raw pseudo-terminal and points link at its slave. A
// stale link is replaced.
func OpenPTY(link string) (*PTY, error) {
	fd, err := unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/ptmx: %w", err)
	}
	p, err := setupPTY(fd, link)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return p, nil
}

func setupPTY(fd int, link string) (*PTY, error) {
	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		return nil, fmt.Errorf("unlock pty: %w", err)
	}
	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		return nil, fmt.Errorf("pty number: %w", err)
	}
	name := "/dev/pts/" + strconv.Itoa(n)

	// holding the slave open keeps master reads from failing with EIO
	// while no host is connected
	slave, err := unix.Open(name, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := makeRaw(slave); err != nil {
		unix.Close(slave)
		return nil, fmt.Errorf("raw mode %s: %w", name, err)
	}
	if link != "" {
		if err := os.Remove(link); err != nil && !errors.Is(err, fs.ErrNotExist) {
			unix.Close(slave)
			return nil, fmt.Errorf("remove stale %s: %w", link, err)
		}
		if err := os.Symlink(name, link); err != nil {
			unix.Close(slave)
			return nil, fmt.Errorf("link %s: %w", link, err)
		}
	}
	return &PTY{
		master: os.NewFile(uintptr(fd), "/dev/ptmx"),
		slave:  slave,
		name:   name,
		link:   link,
	}, nil
}

// makeRaw is cfmakeraw: no echo, no line editing, no translation
func makeRaw(fd int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

func (p *PTY) Read(b []byte) (int, error) {
	return p.master.Read(b)
}

func (p *PTY) Write(b []byte) (int, error) {
	return p.master.Write(b)
}

// Flush is a no-op; writes reach the slave immediately
func (p *PTY) Flush() error { return nil }

// Name returns the slave device path
func (p *PTY) Name() string { return p.name }

// Link returns the symlink the host opens
func (p *PTY) Link() string { return p.link }

// Close removes the link and closes both sides
func (p *PTY) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.link != "" {
		os.Remove(p.link)
	}
	unix.Close(p.slave)
	return p.master.Close()
}
