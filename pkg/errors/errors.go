package errors

import (
	"errors"
	"fmt"

	"signalflow/pkg/errors/ecode"
)

// 携带业务错误码的error，response层通过DecodeErr还原code和message

type Err struct {
	Code    int
	Message string
	Cause   error
}

func (e *Err) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("code: %d, message: %s, cause: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

func (e *Err) Unwrap() error { return e.Cause }

func New(code int, message string) *Err {
	return &Err{Code: code, Message: message}
}

func Wrap(cause error, code int, message string) *Err {
	return &Err{Code: code, Message: message, Cause: cause}
}

// DecodeErr 解出错误码和提示信息，nil视为成功
func DecodeErr(err error) (int, string) {
	if err == nil {
		return ecode.Success, "OK"
	}
	var e *Err
	if errors.As(err, &e) {
		return e.Code, e.Message
	}
	return ecode.InternalErr, err.Error()
}
