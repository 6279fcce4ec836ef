package rpc

import (
	"errors"
	"fmt"
)

// Code はRPCの結果を表すステータスコード。
type Code uint8

const (
	// CodeOK は成功を表す。
	CodeOK Code = iota
	// CodeInvalidArgument はサービス層で検出された不正な入力を表す。
	CodeInvalidArgument
	// CodeNotFound は対象のリソースが存在しないことを表す。
	CodeNotFound
	// CodePermissionDenied は呼び出し元に操作の権限が無いことを表す。
	CodePermissionDenied
	// CodeInternal は予期しない内部エラーを表す。
	CodeInternal
)

// String はステータスコードの名前を返す。
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeInvalidArgument:
		return "INVALID_ARGUMENT"
	case CodeNotFound:
		return "NOT_FOUND"
	case CodePermissionDenied:
		return "PERMISSION_DENIED"
	case CodeInternal:
		return "INTERNAL"
	default:
		return fmt.Sprintf("Code(%d)", uint8(c))
	}
}

// Error はサーバーがCodeOK以外で応答したことを表すエラー。
type Error struct {
	// Code はステータスコード。
	Code Code
	// Message はクライアントに返すメッセージ。内部の詳細は含めない。
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error: code=%s message=%s", e.Code, e.Message)
}

// Errorf は指定したステータスコードのエラーを生成する。
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf はエラーに対応するステータスコードを返す。
// nilならCodeOK、*Errorを含まないエラーはCodeInternalとして扱う。
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return CodeInternal
}

var (
	// ErrUnavailable はサーバーに到達できない、または接続が途中で失われたことを表す。
	ErrUnavailable = errors.New("rpc: サーバーに接続できません")
	// ErrDeadlineExceeded は呼び出しが期限内に完了しなかったことを表す。
	ErrDeadlineExceeded = errors.New("rpc: 呼び出しの期限を超過しました")
	// ErrClientClosed はクローズ済みのClientで呼び出しが行われたことを表す。
	ErrClientClosed = errors.New("rpc: クライアントはクローズ済みです")
)
