package main

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// openSocket creates and binds a socket for addr without connecting or
// listening. The returned descriptor is handed to the service, which
// takes ownership; the address family comes along for validation.
func openSocket(addr string, sockType int) (fd, af int, err error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return -1, 0, fmt.Errorf("failed to resolve %q: %w", addr, err)
	}

	af = unix.AF_INET
	var sa unix.Sockaddr
	if v4 := udpAddr.IP.To4(); v4 != nil || udpAddr.IP == nil {
		sa4 := &unix.SockaddrInet4{Port: udpAddr.Port}
		if v4 != nil {
			copy(sa4.Addr[:], v4)
		}
		sa = sa4
	} else {
		af = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: udpAddr.Port}
		copy(sa6.Addr[:], udpAddr.IP.To16())
		sa = sa6
	}

	fd, err = unix.Socket(af, sockType, 0)
	if err != nil {
		return -1, 0, fmt.Errorf("failed to create socket for %q: %w", addr, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("failed to set SO_REUSEADDR for %q: %w", addr, err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("failed to bind %q: %w", addr, err)
	}
	return fd, af, nil
}

func openUDPSocket(addr string) (int, int, error) {
	return openSocket(addr, unix.SOCK_DGRAM)
}

func openTCPSocket(addr string) (int, int, error) {
	return openSocket(addr, unix.SOCK_STREAM)
}
