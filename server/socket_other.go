//go:build !linux

package server

import (
	"net"

	"mux-rpc/reactor"
)

func listenTCP(string, int) (int, *net.TCPAddr, error) { return -1, nil, reactor.ErrNotSupported }
func acceptConn(int) (int, string, error)              { return -1, "", reactor.ErrNotSupported }
func recvSocket(int, []byte) (int, error)              { return 0, reactor.ErrNotSupported }
func sendSocket(int, []byte) error                     { return reactor.ErrNotSupported }
func shutdownSocket(int) error                         { return reactor.ErrNotSupported }
func closeSocket(int) error                            { return reactor.ErrNotSupported }
func wouldBlock(error) bool                            { return false }
func acceptTransient(error) bool                       { return false }
func acceptStopped(error) bool                         { return false }
