// Package codec はサービス間RPCで使用するCBORエンコーディング設定を提供する。
//
// 外部向けのHTTP APIはJSON、内部のRPCチャネルはCBORを使用する。
// 全パッケージが同じエンコード設定を共有するため、同じ値は常に同じバイト列になる。
// 構造体のフィールド名は json タグで指定する（CBORエンコーダもjsonタグを参照する）。
package codec
