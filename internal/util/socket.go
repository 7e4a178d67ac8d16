package util

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// socketPort - сырой SCPI-сокет (обычно TCP 5025). Тайм-аут чтения реализован
// через дедлайн, который выставляется заново перед каждым Read.
type socketPort struct {
	conn    net.Conn
	timeout time.Duration
}

// NewSocketPort оборачивает уже установленное соединение.
func NewSocketPort(conn net.Conn) Port {
	return &socketPort{conn: conn}
}

func (s *socketPort) Read(p []byte) (int, error) {
	var deadline time.Time
	if s.timeout > 0 {
		deadline = time.Now().Add(s.timeout)
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	n, err := s.conn.Read(p)
	var ne net.Error
	if err != nil && errors.As(err, &ne) && ne.Timeout() {
		return n, ErrTimeout
	}
	return n, err
}

func (s *socketPort) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s *socketPort) Close() error                { return s.conn.Close() }

func (s *socketPort) SetReadTimeout(t time.Duration) error {
	s.timeout = t
	return nil
}

// DialSocket подключается к прибору по TCP. Если в адресе нет порта, используется defaultPort.
func DialSocket(ctx context.Context, address string, defaultPort int) (Port, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		host = address
		port = strconv.Itoa(defaultPort)
	}
	address = net.JoinHostPort(host, port)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к %s: %w", address, err)
	}
	return NewSocketPort(conn), nil
}
