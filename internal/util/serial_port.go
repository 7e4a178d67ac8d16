// Package util содержит вспомогательные утилиты, не являющиеся частью публичного API.
package util

import (
	"time"

	"go.bug.st/serial"
)

// Port определяет байтовый канал к прибору: последовательный порт или TCP-сокет.
// Это позволяет нам использовать реальный канал в production и мок-объект в тестах.
type Port interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
	SetReadTimeout(t time.Duration) error
}

// timeoutError возвращается из Read, когда истек тайм-аут чтения.
type timeoutError struct{}

func (timeoutError) Error() string   { return "тайм-аут чтения" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return false }

// ErrTimeout - ошибка истечения тайм-аута чтения. Реализует Timeout() bool, как net.Error.
var ErrTimeout error = timeoutError{}

// realPort - это обертка над реальной реализацией последовательного порта.
// go.bug.st/serial по истечении тайм-аута возвращает (0, nil); обертка превращает
// это в ErrTimeout, иначе bufio молча крутится до io.ErrNoProgress.
type realPort struct {
	port serial.Port
}

func (r *realPort) Read(p []byte) (int, error) {
	n, err := r.port.Read(p)
	if n == 0 && err == nil && len(p) > 0 {
		return 0, ErrTimeout
	}
	return n, err
}

func (r *realPort) Write(p []byte) (n int, err error) { return r.port.Write(p) }
func (r *realPort) Close() error                      { return r.port.Close() }

func (r *realPort) SetReadTimeout(t time.Duration) error {
	if t <= 0 {
		t = serial.NoTimeout
	}
	return r.port.SetReadTimeout(t)
}

// OpenPort открывает реальный последовательный порт и сбрасывает входной буфер,
// чтобы остатки предыдущего сеанса не попали в первый ответ.
func OpenPort(path string, mode *serial.Mode) (Port, error) {
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, err
	}
	return &realPort{port: p}, nil
}
