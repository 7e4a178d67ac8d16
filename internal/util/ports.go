package util

import (
	"fmt"

	"go.bug.st/serial/enumerator"
)

// PortInfo описывает последовательный порт, найденный в системе.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID, PID     string
	SerialNumber string
	Product      string
}

func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	s := fmt.Sprintf("%s [%s:%s]", p.Name, p.VID, p.PID)
	if p.SerialNumber != "" {
		s += " sn=" + p.SerialNumber
	}
	if p.Product != "" {
		s += " " + p.Product
	}
	return s
}

// ListPorts перечисляет последовательные порты вместе с USB VID/PID.
// Выбор порта остается за оператором.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("ошибка перечисления портов: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}
