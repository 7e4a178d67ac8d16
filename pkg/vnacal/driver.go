// Package vnacal автоматизирует SOLT-калибровку двухпортового анализатора цепей PNA
// с помощью электронного калибровочного модуля LibreCAL.
package vnacal

import (
	"context"
	"time"
)

// Analyzer определяет операции анализатора, нужные калибровке.
// PNA реализует его поверх SCPI; тесты подставляют имитацию.
type Analyzer interface {
	SetContinuous(enable bool) error
	SetCorrectionState(enable bool) error
	SelectFirstTrace(channel int) error
	Trigger() error
	Wait() error
	// SnpData возвращает S-параметры в объявленном порядке портов; особенности
	// сырого формата конкретного прибора скрыты за этим методом.
	SnpData(channel, ports int) (*Network, error)

	CalSets() ([]CalSet, error)
	CreateCalSet(name string) error
	SelectCalSet(name string) error
	DeleteCalSet(guid string) error
	ActivateCalSet(name string, applyStimulus bool) error
	WriteErrorTerm(id CoefficientID, values []complex128) error
}

// CalUnit определяет операции калибровочного модуля.
type CalUnit interface {
	SetPort(port int, std Standard, through int) error
	IdealNetwork(label string) (*Network, error)
}

var (
	_ Analyzer = (*PNA)(nil)
	_ CalUnit  = (*LibreCAL)(nil)
)

// measure выполняет полный цикл одного измерения: запуск, ожидание завершения, чтение.
// Чтение до завершения развертки вернуло бы устаревшие или неполные данные.
func measure(a Analyzer, channel int) (*Network, error) {
	if err := a.Trigger(); err != nil {
		return nil, err
	}
	if err := a.Wait(); err != nil {
		return nil, err
	}
	return a.SnpData(channel, 2)
}

// sleepContext ждет переключения меры, прерываясь по отмене ctx.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
