package rpc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nao1215/postboard/pkg/codec"
)

// maxFrameSize は1フレームの最大サイズ。投稿1件や1ページ分の一覧には十分な大きさ。
const maxFrameSize = 1024 * 1024

// request はRPCリクエストのエンベロープ。
type request struct {
	// Method は呼び出すメソッド名（例: "post.get"）。
	Method string `json:"method"`
	// Caller はGatewayが認証済みとして付与した呼び出し元ユーザーID。
	Caller string `json:"caller"`
	// Params はメソッド固有のパラメータ。
	Params codec.RawMessage `json:"params,omitempty"`
}

// response はRPCレスポンスのエンベロープ。
type response struct {
	// Code はステータスコード。
	Code Code `json:"code"`
	// Message はCodeOK以外の場合のエラーメッセージ。
	Message string `json:"message,omitempty"`
	// Data はCodeOKの場合の結果。
	Data codec.RawMessage `json:"data,omitempty"`
}

// writeFrame は値をCBORにエンコードし、4バイトのビッグエンディアン長を前置して書き込む。
func writeFrame(w io.Writer, v any) error {
	payload, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("フレームのエンコードに失敗: %w", err)
	}
	if len(payload) > maxFrameSize {
		return fmt.Errorf("フレームが大きすぎます: %d bytes", len(payload))
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	if _, err := w.Write(buf); err != nil {
		return err
	}
	return nil
}

// readFrame は1フレームを読み込み、vにデコードする。
// フレーム境界で接続が閉じられた場合は io.EOF をそのまま返す。
func readFrame(r io.Reader, v any) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return fmt.Errorf("フレームが大きすぎます: %d bytes", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	if err := codec.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("フレームのデコードに失敗: %w", err)
	}
	return nil
}
