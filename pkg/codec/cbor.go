package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode はCore Deterministic Encoding（RFC 8949 §4.2）で構成したエンコーダ。
var encMode cbor.EncMode

// decMode は標準的なCBORを受け付けるデコーダ。未知のフィールドは無視する。
var decMode cbor.DecMode

func init() {
	encOptions := cbor.CoreDetEncOptions()
	// 作成日時・更新日時をナノ秒精度で往復させるためRFC3339文字列で表現する。
	encOptions.Time = cbor.TimeRFC3339Nano

	var err error
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBORエンコーダの初期化に失敗: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// any型の値をデコードするときに map[interface{}]interface{} ではなく
		// map[string]any を使う。
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBORデコーダの初期化に失敗: " + err.Error())
	}
}

// Marshal は値をCBORにエンコードする。
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal はCBORデータをvにデコードする。
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage はデコードを遅延させるための生のCBOR値。
type RawMessage = cbor.RawMessage
