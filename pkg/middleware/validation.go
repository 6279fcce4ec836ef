package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	// 検証エラーのフィールド名をjson/formタグの名前で返す。
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(tagName)
	}
}

// FieldError は1つのフィールドの検証エラー。
type FieldError struct {
	// Field はリクエスト上のフィールド名。
	Field string `json:"field"`
	// Reason は満たさなかった制約（例: "required", "max=200"）。
	Reason string `json:"reason"`
}

// ValidationDetails はバインドエラーをフィールドごとの詳細に変換する。
// 検証エラー以外（JSONの構文エラーなど）は "body" フィールドのエラーとして扱う。
func ValidationDetails(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "body", Reason: err.Error()}}
	}

	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		details = append(details, FieldError{Field: fe.Field(), Reason: reason})
	}
	return details
}

// AbortWithValidationError は422とフィールドごとの詳細を返してリクエストを中断する。
func AbortWithValidationError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
		"error":   "リクエストの形式が正しくありません",
		"details": ValidationDetails(err),
	})
}

// tagName はjsonタグ、無ければformタグの名前を返す。
func tagName(field reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(field.Tag.Get(key), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return field.Name
}
