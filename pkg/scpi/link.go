// Package scpi реализует строковый обмен запрос/ответ с прибором поверх байтового канала
// и подпротокол двоичных числовых блоков IEEE 488.2.
package scpi

import (
	"bufio"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/momentics/vnacal/internal/util"
)

// Options задает параметры канала.
type Options struct {
	// WriteTermination добавляется к каждой команде (по умолчанию "\n").
	WriteTermination string
	// Timeout - тайм-аут ожидания ответа (0 - без тайм-аута).
	Timeout time.Duration
	// Logger выводит трассировку команд и ответов (nil отключает).
	Logger *log.Logger
}

// Link - канал к одному прибору. Одновременно выполняется не более одной команды:
// каждый Query блокируется до полного получения ответа. Link не потокобезопасен,
// сериализация - задача владельца сеанса.
type Link struct {
	port   util.Port
	r      *bufio.Reader
	term   string
	logger *log.Logger
}

// NewLink создает канал поверх открытого порта.
func NewLink(port util.Port, opts Options) (*Link, error) {
	term := opts.WriteTermination
	if term == "" {
		term = "\n"
	}
	if err := port.SetReadTimeout(opts.Timeout); err != nil {
		return nil, fmt.Errorf("scpi: ошибка установки тайм-аута: %w", err)
	}
	return &Link{
		port:   port,
		r:      bufio.NewReaderSize(port, 64*1024),
		term:   term,
		logger: opts.Logger,
	}, nil
}

// Send отправляет команду без ожидания ответа.
func (l *Link) Send(cmd string) error {
	l.trace("-> %s", cmd)
	if _, err := l.port.Write([]byte(cmd + l.term)); err != nil {
		return fmt.Errorf("scpi: ошибка отправки %q: %w", cmd, err)
	}
	return nil
}

// Query отправляет команду и возвращает одну строку ответа без терминатора.
func (l *Link) Query(cmd string) (string, error) {
	if err := l.Send(cmd); err != nil {
		return "", err
	}
	return l.readLine(cmd)
}

// ReadLine читает следующую строку ответа. Используется для потоковых ответов,
// которые приходят несколькими строками после одного запроса.
func (l *Link) ReadLine() (string, error) {
	return l.readLine("")
}

func (l *Link) readLine(cmd string) (string, error) {
	line, err := l.r.ReadString('\n')
	if err != nil {
		if isTimeout(err) {
			return "", &TimeoutError{Command: cmd, Err: err}
		}
		return "", fmt.Errorf("scpi: ошибка чтения ответа на %q: %w", cmd, err)
	}
	line = strings.TrimRight(line, "\r\n")
	l.trace("<- %s", line)
	return line, nil
}

// QueryASCII запрашивает список чисел в текстовом виде, разделенных запятыми.
func (l *Link) QueryASCII(cmd string) ([]float64, error) {
	line, err := l.Query(cmd)
	if err != nil {
		return nil, err
	}
	return parseASCII(cmd, line)
}

func parseASCII(cmd, line string) ([]float64, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	fields := strings.Split(line, ",")
	values := make([]float64, 0, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, &ProtocolError{Command: cmd, Detail: fmt.Sprintf("не удалось распарсить значение %d %q", i+1, f)}
		}
		values = append(values, v)
	}
	return values, nil
}

// QueryBinary запрашивает двоичный числовой блок. Читается ровно объявленное в
// заголовке число байт, затем терминатор строки, после чего канал снова готов к
// строковому обмену.
func (l *Link) QueryBinary(cmd string, elem ElementType, order ByteOrder) ([]float64, error) {
	if err := l.Send(cmd); err != nil {
		return nil, err
	}
	payload, err := readBlock(l.r)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Command: cmd, Err: err}
		}
		return nil, &ProtocolError{Command: cmd, Detail: err.Error()}
	}
	l.trace("<- #block %d bytes", len(payload))

	rest, err := l.r.ReadString('\n')
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Command: cmd, Err: err}
		}
		return nil, fmt.Errorf("scpi: ошибка чтения терминатора блока %q: %w", cmd, err)
	}
	if strings.TrimSpace(rest) != "" {
		return nil, &ProtocolError{Command: cmd, Detail: fmt.Sprintf("лишние данные после блока: %q", rest)}
	}

	values, err := DecodeBlockPayload(payload, elem, order)
	if err != nil {
		return nil, &ProtocolError{Command: cmd, Detail: err.Error()}
	}
	return values, nil
}

// WriteBinary отправляет команду prefix, за которой сразу следует двоичный блок значений.
func (l *Link) WriteBinary(prefix string, values []float64, elem ElementType, order ByteOrder) error {
	block, err := EncodeBlock(values, elem, order)
	if err != nil {
		return err
	}
	msg := make([]byte, 0, len(prefix)+len(block)+len(l.term))
	msg = append(msg, prefix...)
	msg = append(msg, block...)
	msg = append(msg, l.term...)
	l.trace("-> %s#block %d bytes", prefix, len(block))
	if _, err := l.port.Write(msg); err != nil {
		return fmt.Errorf("scpi: ошибка отправки %q: %w", prefix, err)
	}
	return nil
}

// Close закрывает порт.
func (l *Link) Close() error { return l.port.Close() }

func (l *Link) trace(format string, args ...interface{}) {
	if l.logger != nil {
		l.logger.Printf(format, args...)
	}
}
