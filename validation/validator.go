package validation

import (
	"gocomposite/errors"
)

// ValidatePositive 验证正整数标识；失败返回 INVALID_INPUT，消息形如 "Invalid productId: 0"
func ValidatePositive(value int, fieldName string) error {
	if value < 1 {
		return errors.NewInvalidInput("Invalid %s: %d", fieldName, value)
	}
	return nil
}
