package vnacal

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/momentics/vnacal/pkg/scpi"
)

const (
	// DefaultSocketPort - порт сырого SCPI-сокета PNA.
	DefaultSocketPort = 5025
	// DefaultAnalyzerTimeout покрывает полную развертку с узкой полосой ПЧ.
	DefaultAnalyzerTimeout = 2010 * time.Second
	// DefaultCalUnitTimeout - тайм-аут ответа CalUnit.
	DefaultCalUnitTimeout = 5 * time.Second
)

// Config хранит параметры подключения к приборам.
type Config struct {
	// CalUnitPath - последовательный порт CalUnit (например, /dev/ttyACM0).
	CalUnitPath     string
	CalUnitBaudRate int
	CalUnitTimeout  time.Duration
	// CoefficientSet - набор эталонных коэффициентов CalUnit.
	CoefficientSet string

	// AnalyzerAddress - адрес анализатора host[:port].
	AnalyzerAddress string
	AnalyzerTimeout time.Duration
	// BinaryTransfers включает передачу данных блоками REAL,32 вместо ASCII.
	BinaryTransfers bool
	ByteOrder       scpi.ByteOrder

	// Trace выводит в журнал каждую команду и ответ.
	Trace  bool
	Logger *log.Logger
}

// DefaultConfig возвращает Config с значениями по умолчанию.
func DefaultConfig() *Config {
	return &Config{
		CalUnitPath:     "/dev/ttyACM0",
		CalUnitBaudRate: 115200,
		CalUnitTimeout:  DefaultCalUnitTimeout,
		CoefficientSet:  DefaultCoefficientSet,
		AnalyzerAddress: "pna.lan",
		AnalyzerTimeout: DefaultAnalyzerTimeout,
		ByteOrder:       scpi.LittleEndian,
	}
}

// Validate проверяет конфигурацию.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("конфигурация не задана")
	}
	if c.CalUnitPath == "" {
		return errors.New("не указан порт CalUnit")
	}
	if c.CalUnitBaudRate <= 0 {
		return fmt.Errorf("некорректная скорость порта CalUnit %d", c.CalUnitBaudRate)
	}
	if c.AnalyzerAddress == "" {
		return errors.New("не указан адрес анализатора")
	}
	if !c.ByteOrder.Valid() {
		return &UnhandledFormatError{Format: c.ByteOrder.String()}
	}
	return nil
}

// DataFormat возвращает формат передачи данных анализатора.
func (c *Config) DataFormat() DataFormat {
	if c.BinaryTransfers {
		return DataFormatReal32
	}
	return DataFormatASCII
}

func (c *Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func (c *Config) traceLogger(prefix string) *log.Logger {
	if !c.Trace {
		return nil
	}
	l := c.logger()
	return log.New(l.Writer(), l.Prefix()+prefix, l.Flags())
}
