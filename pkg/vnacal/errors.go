package vnacal

import (
	"errors"
	"fmt"
)

// IdentityKind различает, какое из устройств не прошло идентификацию.
type IdentityKind int

const (
	// UnsupportedDevice - CalUnit с неожиданным производителем или моделью.
	UnsupportedDevice IdentityKind = iota + 1
	// UnsupportedModel - модель анализатора вне списка поддерживаемых.
	UnsupportedModel
)

// DeviceIdentityError - прибор ответил на *IDN? не тем, что ожидалось.
// Фатальна: сеанс прерывается до любых измерений.
type DeviceIdentityError struct {
	Kind         IdentityKind
	Manufacturer string
	Model        string
}

func (e *DeviceIdentityError) Error() string {
	if e.Kind == UnsupportedModel {
		return fmt.Sprintf("неподдерживаемая модель анализатора: %s", e.Model)
	}
	return fmt.Sprintf("обнаружено неподдерживаемое устройство: %s %s", e.Manufacturer, e.Model)
}

// CatalogMismatchError - число имен и GUID в каталоге калибровок не совпадает.
type CatalogMismatchError struct {
	Names, GUIDs int
}

func (e *CatalogMismatchError) Error() string {
	return fmt.Sprintf("каталог калибровок поврежден: %d имен и %d GUID", e.Names, e.GUIDs)
}

// AmbiguousMappingError - автоопределение не дало ровно одного кандидата, а подсказки нет.
type AmbiguousMappingError struct {
	Label      string
	Candidates []int
}

func (e *AmbiguousMappingError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("%s: не найдено ни одного подключенного порта CalUnit", e.Label)
	}
	return fmt.Sprintf("%s: неоднозначное сопоставление, кандидаты %v", e.Label, e.Candidates)
}

// MappingMismatchError - результат автоопределения расходится с подсказкой оператора.
type MappingMismatchError struct {
	Label      string
	Hint       int
	Candidates []int
}

func (e *MappingMismatchError) Error() string {
	return fmt.Sprintf("%s: указан порт %d, обнаружены %v", e.Label, e.Hint, e.Candidates)
}

// UnhandledFormatError - сочетание формата данных и порядка байт не реализовано.
type UnhandledFormatError struct {
	Format string
}

func (e *UnhandledFormatError) Error() string {
	return fmt.Sprintf("необрабатываемый формат данных: %s", e.Format)
}

// SweepMismatchError - частотная сетка сети не совпадает с сеткой калибровки.
type SweepMismatchError struct {
	What      string
	Frequency float64
}

func (e *SweepMismatchError) Error() string {
	if e.Frequency != 0 {
		return fmt.Sprintf("%s: частота %.3f Гц вне частотной сетки", e.What, e.Frequency)
	}
	return fmt.Sprintf("%s: частотные сетки не совпадают", e.What)
}

// IsMappingError сообщает, вызвана ли ошибка неудачным сопоставлением портов.
func IsMappingError(err error) bool {
	var ae *AmbiguousMappingError
	var me *MappingMismatchError
	return errors.As(err, &ae) || errors.As(err, &me)
}
