//go:build linux

package server

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

const listenBacklog = 10

// listenTCP opens a non-blocking listening socket and reports the address it
// actually bound, which differs from the request when port is 0.
func listenTCP(host string, port int) (int, *net.TCPAddr, error) {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return -1, nil, err
	}
	family, sa := toSockaddr(addr)

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, nil, fmt.Errorf("socket: %w", err)
	}
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err = unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("bind %v: %w", addr, err)
	}
	if err = unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("listen %v: %w", addr, err)
	}
	local, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("getsockname: %w", err)
	}
	return fd, fromSockaddr(local), nil
}

func toSockaddr(addr *net.TCPAddr) (int, unix.Sockaddr) {
	if addr.IP == nil || addr.IP.To4() != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		if addr.IP != nil {
			copy(sa.Addr[:], addr.IP.To4())
		}
		return unix.AF_INET, sa
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	if addr.Zone != "" {
		if ifi, err := net.InterfaceByName(addr.Zone); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return unix.AF_INET6, sa
}

func fromSockaddr(sa unix.Sockaddr) *net.TCPAddr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(sa.Addr[:]).To16(), Port: sa.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(sa.Addr[:]), Port: sa.Port}
	}
	return &net.TCPAddr{}
}

// acceptConn accepts one pending connection as a non-blocking descriptor.
func acceptConn(lfd int) (int, string, error) {
	fd, sa, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, "", err
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return fd, fromSockaddr(sa).String(), nil
}

func recvSocket(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// sendSocket writes all of buf. When the socket buffer is full it sleeps in
// poll until the descriptor turns writable and carries on; there is no retry
// ceiling.
func sendSocket(fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.SendmsgN(fd, buf, nil, nil, unix.MSG_NOSIGNAL)
		switch err {
		case nil:
			buf = buf[n:]
		case unix.EAGAIN:
			if err := waitWritable(fd); err != nil {
				return err
			}
		case unix.EINTR:
		default:
			return err
		}
	}
	return nil
}

func waitWritable(fd int) error {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		_, err := unix.Poll(pfd, -1)
		if err == unix.EINTR {
			continue
		}
		// POLLHUP and POLLERR fall through to the next send, which reports them
		return err
	}
}

func shutdownSocket(fd int) error { return unix.Shutdown(fd, unix.SHUT_RDWR) }
func closeSocket(fd int) error    { return unix.Close(fd) }

func wouldBlock(err error) bool { return err == unix.EAGAIN }

// acceptTransient reports accept errors that only lose the one connection.
func acceptTransient(err error) bool {
	return err == unix.EAGAIN || err == unix.EINTR || err == unix.ECONNABORTED || err == unix.EPROTO
}

// acceptStopped reports the error accept returns once the listening socket was shut down.
func acceptStopped(err error) bool { return err == unix.EINVAL }
