//go:build !unix

package rpc

import "net"

// checkIdleConn はunix以外では確認を行わない。
func checkIdleConn(net.Conn) error {
	return nil
}
