package service

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Descriptor adoption. The caller hands over a raw fd prepared by a
// privileged setup step: bound, and for TCP ready-to-listen. Adoption is
// an ownership transfer: the runtime poller works on a duplicate and the
// original descriptor is closed here, so the fd is unusable by the caller
// afterwards. Beyond the address-family argument nothing about the socket
// is verified; "already bound" is a documented precondition, not a check.

func adoptUDPConn(fd int) (*net.UDPConn, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("setting fd %d non-blocking: %v: %w", fd, err, ErrIO)
	}
	f := os.NewFile(uintptr(fd), "udp-listener")
	if f == nil {
		return nil, fmt.Errorf("fd %d is not a valid descriptor: %w", fd, ErrIO)
	}
	defer f.Close()

	pc, err := net.FilePacketConn(f)
	if err != nil {
		return nil, fmt.Errorf("adopting fd %d: %v: %w", fd, err, ErrIO)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("fd %d is not a UDP socket: %w", fd, ErrIO)
	}
	return conn, nil
}

func adoptTCPListener(fd int) (*net.TCPListener, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("setting fd %d non-blocking: %v: %w", fd, err, ErrIO)
	}
	// The handoff contract delivers a socket that is ready for listening
	// but has not started; the listen(2) happens here.
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		return nil, fmt.Errorf("listen on fd %d: %v: %w", fd, err, ErrIO)
	}
	f := os.NewFile(uintptr(fd), "tcp-listener")
	if f == nil {
		return nil, fmt.Errorf("fd %d is not a valid descriptor: %w", fd, ErrIO)
	}
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("adopting fd %d: %v: %w", fd, err, ErrIO)
	}
	tln, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("fd %d is not a TCP socket: %w", fd, ErrIO)
	}
	return tln, nil
}
