//go:build unix

package rpc

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// errUnexpectedRead はアイドル接続に要求していないデータが届いていたことを示す。
var errUnexpectedRead = errors.New("rpc: アイドル接続に予期しないデータがあります")

// checkIdleConn はアイドル接続がサーバー側で閉じられていないかをブロックせずに確認する。
// 閉じられていれば io.EOF を返す。
func checkIdleConn(conn net.Conn) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}

	var checkErr error
	err = raw.Read(func(fd uintptr) bool {
		var buf [1]byte
		n, err := syscall.Read(int(fd), buf[:])
		switch {
		case n == 0 && err == nil:
			checkErr = io.EOF
		case n > 0:
			checkErr = errUnexpectedRead
		case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK):
			checkErr = nil
		default:
			checkErr = err
		}
		// ソケットはノンブロッキングなので読み込み可能になるまで待たない。
		return true
	})
	if err != nil {
		return err
	}
	return checkErr
}
