package scpi

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
)

// ByteOrder - порядок байт в двоичных блоках.
type ByteOrder int

const (
	// BigEndian - "NORM", порядок по умолчанию для IEEE 488.2.
	BigEndian ByteOrder = iota + 1
	// LittleEndian - "SWAP".
	LittleEndian
)

func (o ByteOrder) String() string {
	switch o {
	case BigEndian:
		return "NORM"
	case LittleEndian:
		return "SWAP"
	default:
		return fmt.Sprintf("ByteOrder(%d)", int(o))
	}
}

// Valid сообщает, является ли значение одним из определенных порядков байт.
func (o ByteOrder) Valid() bool { return o == BigEndian || o == LittleEndian }

func (o ByteOrder) binary() binary.ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ParseByteOrder разбирает "big"/"norm" и "little"/"swap".
func ParseByteOrder(s string) (ByteOrder, error) {
	switch s {
	case "big", "norm", "NORM":
		return BigEndian, nil
	case "little", "swap", "SWAP":
		return LittleEndian, nil
	}
	return 0, fmt.Errorf("неизвестный порядок байт %q", s)
}

// ElementType - тип элемента двоичного числового блока.
type ElementType int

const (
	Float32 ElementType = iota + 1
	Float64
)

// Size возвращает размер элемента в байтах.
func (t ElementType) Size() int {
	switch t {
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

func (t ElementType) String() string {
	switch t {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("ElementType(%d)", int(t))
	}
}

// maxBlockSize ограничивает длину блока, объявленную в заголовке, чтобы испорченный
// заголовок не приводил к огромному выделению памяти.
const maxBlockSize = 256 << 20

// EncodeBlock кодирует значения в блок определенной длины "#<n><len><payload>".
func EncodeBlock(values []float64, elem ElementType, order ByteOrder) ([]byte, error) {
	size := elem.Size()
	if size == 0 || !order.Valid() {
		return nil, fmt.Errorf("scpi: неподдерживаемый формат блока %s/%s", elem, order)
	}
	payload := make([]byte, len(values)*size)
	bo := order.binary()
	for i, v := range values {
		switch elem {
		case Float32:
			bo.PutUint32(payload[i*4:], math.Float32bits(float32(v)))
		case Float64:
			bo.PutUint64(payload[i*8:], math.Float64bits(v))
		}
	}
	length := strconv.Itoa(len(payload))
	var buf bytes.Buffer
	buf.Grow(2 + len(length) + len(payload))
	buf.WriteByte('#')
	buf.WriteByte(byte('0' + len(length)))
	buf.WriteString(length)
	buf.Write(payload)
	return buf.Bytes(), nil
}

// DecodeBlockPayload разбирает тело блока в числа с плавающей точкой.
func DecodeBlockPayload(payload []byte, elem ElementType, order ByteOrder) ([]float64, error) {
	size := elem.Size()
	if size == 0 || !order.Valid() {
		return nil, fmt.Errorf("scpi: неподдерживаемый формат блока %s/%s", elem, order)
	}
	if len(payload)%size != 0 {
		return nil, fmt.Errorf("scpi: длина блока %d не кратна размеру элемента %d", len(payload), size)
	}
	bo := order.binary()
	values := make([]float64, len(payload)/size)
	for i := range values {
		switch elem {
		case Float32:
			values[i] = float64(math.Float32frombits(bo.Uint32(payload[i*4:])))
		case Float64:
			values[i] = math.Float64frombits(bo.Uint64(payload[i*8:]))
		}
	}
	return values, nil
}

// readBlock читает ровно один блок определенной длины из r: '#', цифру n, n цифр длины
// и затем ровно столько байт тела. Терминатор строки после блока не потребляется.
func readBlock(r *bufio.Reader) ([]byte, error) {
	var c byte
	var err error
	// Перед '#' допускаются пробелы, некоторые приборы их вставляют.
	for {
		if c, err = r.ReadByte(); err != nil {
			return nil, err
		}
		if c != ' ' && c != '\t' {
			break
		}
	}
	if c != '#' {
		return nil, fmt.Errorf("ожидался заголовок блока '#', получено %q", c)
	}
	if c, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if c < '1' || c > '9' {
		return nil, fmt.Errorf("неподдерживаемый заголовок блока #%c", c)
	}
	digits := make([]byte, c-'0')
	if _, err := io.ReadFull(r, digits); err != nil {
		return nil, err
	}
	length, err := strconv.Atoi(string(digits))
	if err != nil || length < 0 {
		return nil, fmt.Errorf("некорректная длина блока %q", digits)
	}
	if length > maxBlockSize {
		return nil, fmt.Errorf("длина блока %d превышает предел", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
