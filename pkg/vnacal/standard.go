package vnacal

import (
	"fmt"
	"strings"
)

// Standard - калибровочная мера CalUnit.
type Standard int

const (
	StandardShort Standard = iota + 1
	StandardOpen
	StandardLoad
	StandardThrough
	// StandardNone отключает порт от любой меры. Это управляющее значение, а не мера.
	StandardNone
)

// CalibrationStandards - порядок измерения мер, он же порядок входа решателя SOLT.
var CalibrationStandards = [4]Standard{StandardShort, StandardOpen, StandardLoad, StandardThrough}

func (s Standard) String() string {
	switch s {
	case StandardShort:
		return "SHORT"
	case StandardOpen:
		return "OPEN"
	case StandardLoad:
		return "LOAD"
	case StandardThrough:
		return "THROUGH"
	case StandardNone:
		return "NONE"
	default:
		return fmt.Sprintf("Standard(%d)", int(s))
	}
}

// Valid сообщает, является ли значение одним из определенных.
func (s Standard) Valid() bool { return s >= StandardShort && s <= StandardNone }

// Reflective сообщает, является ли мера однопортовой отражающей.
func (s Standard) Reflective() bool {
	return s == StandardShort || s == StandardOpen || s == StandardLoad
}

// ParseStandard разбирает имя меры без учета регистра.
func ParseStandard(s string) (Standard, error) {
	for st := StandardShort; st <= StandardNone; st++ {
		if strings.EqualFold(s, st.String()) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("неизвестная мера %q", s)
}

// PortMapping связывает порты анализатора 1 и 2 с портами CalUnit.
type PortMapping struct {
	Port1, Port2 int
}

// Validate проверяет, что оба порта определены и различны.
func (m PortMapping) Validate() error {
	if m.Port1 <= 0 || m.Port2 <= 0 {
		return fmt.Errorf("сопоставление портов не определено: %d/%d", m.Port1, m.Port2)
	}
	if m.Port1 == m.Port2 {
		return &AmbiguousMappingError{Label: "port1/port2", Candidates: []int{m.Port1}}
	}
	return nil
}

func (m PortMapping) String() string {
	return fmt.Sprintf("port1->P%d port2->P%d", m.Port1, m.Port2)
}
