// Этот файл содержит контроллер CalUnit (LibreCAL, текстовый протокол по последовательному порту).
package vnacal

import (
	"fmt"
	"strings"

	"github.com/momentics/vnacal/pkg/scpi"
)

const (
	libreCALManufacturer = "LibreCAL"
	libreCALModel        = "LibreCAL"

	// DefaultCoefficientSet - заводской набор эталонных коэффициентов CalUnit.
	DefaultCoefficientSet = "FACTORY"

	coeffStart = "START"
	coeffEnd   = "END"
)

// Identity - разобранный ответ на *IDN?.
type Identity struct {
	Manufacturer, Model, Serial, Version string
}

func parseIdentity(resp string) Identity {
	fields := strings.Split(strings.TrimSpace(resp), ",")
	for len(fields) < 4 {
		fields = append(fields, "")
	}
	return Identity{
		Manufacturer: strings.TrimSpace(fields[0]),
		Model:        strings.TrimSpace(fields[1]),
		Serial:       strings.TrimSpace(fields[2]),
		Version:      strings.TrimSpace(fields[3]),
	}
}

// LibreCAL управляет переключаемым модулем калибровочных мер.
type LibreCAL struct {
	link           *scpi.Link
	coefficientSet string
}

// NewLibreCAL создает контроллер. Пустой coefficientSet означает DefaultCoefficientSet.
func NewLibreCAL(link *scpi.Link, coefficientSet string) *LibreCAL {
	if coefficientSet == "" {
		coefficientSet = DefaultCoefficientSet
	}
	return &LibreCAL{link: link, coefficientSet: coefficientSet}
}

// Identify запрашивает *IDN? и проверяет, что это LibreCAL.
func (c *LibreCAL) Identify() (Identity, error) {
	resp, err := c.link.Query("*IDN?")
	if err != nil {
		return Identity{}, fmt.Errorf("librecal: ошибка идентификации: %w", err)
	}
	id := parseIdentity(resp)
	if id.Manufacturer != libreCALManufacturer || id.Model != libreCALModel {
		return id, &DeviceIdentityError{Kind: UnsupportedDevice, Manufacturer: id.Manufacturer, Model: id.Model}
	}
	return id, nil
}

// SetPort подключает к порту port меру std. Для THROUGH обязателен порт-партнер through,
// для остальных мер он игнорируется. StandardNone отключает порт.
func (c *LibreCAL) SetPort(port int, std Standard, through int) error {
	if port <= 0 {
		return fmt.Errorf("librecal: некорректный порт %d", port)
	}
	if !std.Valid() {
		return fmt.Errorf("librecal: некорректная мера %s", std)
	}
	cmd := fmt.Sprintf(":PORT %d %s", port, std)
	if std == StandardThrough {
		if through <= 0 || through == port {
			return fmt.Errorf("librecal: для THROUGH на порту %d нужен другой порт-партнер, получен %d", port, through)
		}
		cmd = fmt.Sprintf(":PORT %d %s %d", port, std, through)
	}
	resp, err := c.link.Query(cmd)
	if err != nil {
		return fmt.Errorf("librecal: ошибка переключения порта %d на %s: %w", port, std, err)
	}
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(resp)), "ERR") {
		return fmt.Errorf("librecal: устройство отклонило %q: %s", cmd, resp)
	}
	return nil
}

// IdealLabel возвращает имя эталонного коэффициента: P<n>_<МЕРА> для отражающих мер
// и P<младший><старший>_THROUGH для перемычки.
func IdealLabel(std Standard, port, partner int) string {
	if std == StandardThrough {
		lo, hi := port, partner
		if lo > hi {
			lo, hi = hi, lo
		}
		return fmt.Sprintf("P%d%d_%s", lo, hi, std)
	}
	return fmt.Sprintf("P%d_%s", port, std)
}

// IdealNetwork получает заводскую эталонную сеть меры по имени коэффициента. Ответ - строки
// Touchstone между маркерами START и END; перемычка разбирается как двухпортовая сеть.
func (c *LibreCAL) IdealNetwork(label string) (*Network, error) {
	cmd := fmt.Sprintf("COEFF:GET? %s %s", c.coefficientSet, label)
	resp, err := c.link.Query(cmd)
	if err != nil {
		return nil, fmt.Errorf("librecal: ошибка запроса коэффициента %s: %w", label, err)
	}
	if strings.TrimSpace(resp) != coeffStart {
		return nil, fmt.Errorf("librecal: коэффициент %s недоступен: %q", label, resp)
	}

	var sb strings.Builder
	for {
		line, err := c.link.ReadLine()
		if err != nil {
			return nil, fmt.Errorf("librecal: ошибка чтения коэффициента %s: %w", label, err)
		}
		if strings.TrimSpace(line) == coeffEnd {
			break
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	ports := 1
	if strings.Contains(label, StandardThrough.String()) {
		ports = 2
	}
	return ReadTouchstone(strings.NewReader(sb.String()), ports, label)
}

// Close закрывает канал.
func (c *LibreCAL) Close() error { return c.link.Close() }
