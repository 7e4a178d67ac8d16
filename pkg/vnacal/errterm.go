package vnacal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrorTerm - один из 12 членов модели ошибок двухпортового анализатора.
type ErrorTerm int

const (
	ForwardDirectivity ErrorTerm = iota + 1
	ForwardSourceMatch
	ForwardReflectionTracking
	ForwardTransmissionTracking
	ForwardLoadMatch
	ForwardIsolation
	ReverseDirectivity
	ReverseSourceMatch
	ReverseReflectionTracking
	ReverseTransmissionTracking
	ReverseLoadMatch
	ReverseIsolation
)

// ErrorTerms перечисляет все члены модели в фиксированном порядке.
var ErrorTerms = []ErrorTerm{
	ForwardDirectivity, ForwardSourceMatch, ForwardReflectionTracking,
	ForwardTransmissionTracking, ForwardLoadMatch, ForwardIsolation,
	ReverseDirectivity, ReverseSourceMatch, ReverseReflectionTracking,
	ReverseTransmissionTracking, ReverseLoadMatch, ReverseIsolation,
}

var errorTermNames = map[ErrorTerm]string{
	ForwardDirectivity:          "forward directivity",
	ForwardSourceMatch:          "forward source match",
	ForwardReflectionTracking:   "forward reflection tracking",
	ForwardTransmissionTracking: "forward transmission tracking",
	ForwardLoadMatch:            "forward load match",
	ForwardIsolation:            "forward isolation",
	ReverseDirectivity:          "reverse directivity",
	ReverseSourceMatch:          "reverse source match",
	ReverseReflectionTracking:   "reverse reflection tracking",
	ReverseTransmissionTracking: "reverse transmission tracking",
	ReverseLoadMatch:            "reverse load match",
	ReverseIsolation:            "reverse isolation",
}

func (t ErrorTerm) String() string {
	if name, ok := errorTermNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ErrorTerm(%d)", int(t))
}

// CoefficientID - идентификатор коэффициента в наборе калибровки PNA: тип члена и пара портов
// (порт приемника, порт источника).
type CoefficientID struct {
	Kind             string
	Receiver, Source int
}

func (c CoefficientID) String() string {
	return fmt.Sprintf("%s,%d,%d", c.Kind, c.Receiver, c.Source)
}

// coefficientIDs сопоставляет члены модели идентификаторам коэффициентов PNA.
var coefficientIDs = map[ErrorTerm]CoefficientID{
	ForwardDirectivity:        {"EDIR", 1, 1},
	ForwardSourceMatch:        {"ESRM", 1, 1},
	ForwardReflectionTracking: {"ERFT", 1, 1},

	ForwardTransmissionTracking: {"ETRT", 2, 1},
	ForwardLoadMatch:            {"ELDM", 2, 1},
	ForwardIsolation:            {"EXTLK", 2, 1},

	ReverseDirectivity:        {"EDIR", 2, 2},
	ReverseSourceMatch:        {"ESRM", 2, 2},
	ReverseReflectionTracking: {"ERFT", 2, 2},

	ReverseTransmissionTracking: {"ETRT", 1, 2},
	ReverseLoadMatch:            {"ELDM", 1, 2},
	ReverseIsolation:            {"EXTLK", 1, 2},
}

// Coefficient возвращает идентификатор коэффициента PNA для члена модели.
func (t ErrorTerm) Coefficient() (CoefficientID, bool) {
	id, ok := coefficientIDs[t]
	return id, ok
}

// ErrorModel - 12-членная модель ошибок на частотной сетке калибровки.
type ErrorModel struct {
	Frequencies []float64
	Terms       map[ErrorTerm][]complex128
}

// Validate проверяет наличие всех 12 членов нужной длины.
func (m *ErrorModel) Validate() error {
	if m == nil {
		return errors.New("модель ошибок не задана")
	}
	if len(m.Frequencies) == 0 {
		return errors.New("модель ошибок не содержит частот")
	}
	for _, t := range ErrorTerms {
		values, ok := m.Terms[t]
		if !ok {
			return fmt.Errorf("в модели ошибок отсутствует член %s", t)
		}
		if len(values) != len(m.Frequencies) {
			return fmt.Errorf("член %s: %d значений на %d частот", t, len(values), len(m.Frequencies))
		}
	}
	return nil
}

// Interleave разворачивает комплексную последовательность в re0, im0, re1, im1, ...
func Interleave(values []complex128) []float64 {
	out := make([]float64, 0, 2*len(values))
	for _, v := range values {
		out = append(out, real(v), imag(v))
	}
	return out
}

// Deinterleave выполняет обратное преобразование.
func Deinterleave(values []float64) ([]complex128, error) {
	if len(values)%2 != 0 {
		return nil, fmt.Errorf("нечетное число значений %d", len(values))
	}
	out := make([]complex128, len(values)/2)
	for i := range out {
		out[i] = complex(values[2*i], values[2*i+1])
	}
	return out, nil
}

// FormatScientific форматирует число в кратчайшей научной записи с обязательной
// десятичной точкой в мантиссе: 0.5 -> "5.e-01", -0.123 -> "-1.23e-01".
func FormatScientific(v float64) string {
	s := strconv.FormatFloat(v, 'e', -1, 64)
	mantissa, exp, ok := strings.Cut(s, "e")
	if !ok {
		return s
	}
	if !strings.Contains(mantissa, ".") {
		mantissa += "."
	}
	return mantissa + "e" + exp
}

// EncodeTermASCII кодирует член модели для текстовой передачи: перемежающиеся
// действительные и мнимые части через запятую.
func EncodeTermASCII(values []complex128) string {
	flat := Interleave(values)
	parts := make([]string, len(flat))
	for i, v := range flat {
		parts[i] = FormatScientific(v)
	}
	return strings.Join(parts, ",")
}
