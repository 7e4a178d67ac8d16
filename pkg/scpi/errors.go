package scpi

import (
	"errors"
	"fmt"
)

// TimeoutError означает, что прибор не ответил за отведенное время.
// После него сеанс считается рассинхронизированным: повторов нет.
type TimeoutError struct {
	Command string
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("scpi: тайм-аут ответа на %q: %v", e.Command, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Timeout позволяет проверять ошибку как net.Error.
func (e *TimeoutError) Timeout() bool { return true }

// IsTimeout проверяет, является ли err ошибкой TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// ProtocolError - ответ прибора не соответствует ожидаемому формату.
type ProtocolError struct {
	Command string
	Detail  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("scpi: ошибка протокола в ответе на %q: %s", e.Command, e.Detail)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
