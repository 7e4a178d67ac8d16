package vnacal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/cmplx"
)

// DefaultPhaseThreshold - порог средней разности фаз OPEN/SHORT, выше которого порт CalUnit
// считается подключенным к порту анализатора. Эвристика: в идеале OPEN и SHORT отличаются
// по фазе на 180°, а у неподключенного порта разность близка к нулю.
const DefaultPhaseThreshold = math.Pi / 2

// Detection - результат автоопределения подключения портов.
type Detection struct {
	// Phases[i] - |фаза| усредненной разности для порта CalUnit i по S11 и S22.
	Phases map[int][2]float64
	// Port1 и Port2 - порты CalUnit, признанные подключенными к портам анализатора 1 и 2.
	Port1, Port2 []int
}

// PhaseDifference возвращает |arg(mean(open * conj(short)))|. Усредняются комплексные
// произведения, а не углы, поэтому переход фазы через ±π не искажает результат.
func PhaseDifference(open, short []complex128) (float64, error) {
	if len(open) == 0 || len(open) != len(short) {
		return 0, fmt.Errorf("разная длина измерений OPEN (%d) и SHORT (%d)", len(open), len(short))
	}
	var sum complex128
	for i := range open {
		sum += open[i] * cmplx.Conj(short[i])
	}
	mean := sum / complex(float64(len(open)), 0)
	return math.Abs(cmplx.Phase(mean)), nil
}

// DetectPorts поочередно подключает к каждому порту CalUnit меры OPEN и SHORT, измеряет
// S11 и S22 и по разности фаз определяет, к какому порту анализатора он подключен.
func DetectPorts(ctx context.Context, a Analyzer, c CalUnit, opts Options) (*Detection, error) {
	opts = opts.withDefaults()
	det := &Detection{Phases: make(map[int][2]float64, opts.CalUnitPorts)}

	for port := 1; port <= opts.CalUnitPorts; port++ {
		if err := c.SetPort(port, StandardNone, 0); err != nil {
			return nil, err
		}
	}

	for port := 1; port <= opts.CalUnitPorts; port++ {
		open, err := measureStandardOnPort(ctx, a, c, opts, port, StandardOpen)
		if err != nil {
			return nil, err
		}
		short, err := measureStandardOnPort(ctx, a, c, opts, port, StandardShort)
		if err != nil {
			return nil, err
		}
		if err := c.SetPort(port, StandardNone, 0); err != nil {
			return nil, err
		}

		var phases [2]float64
		for i, analyzerPort := range []int{1, 2} {
			phases[i], err = PhaseDifference(open.Param(analyzerPort, analyzerPort), short.Param(analyzerPort, analyzerPort))
			if err != nil {
				return nil, fmt.Errorf("порт P%d: %w", port, err)
			}
			opts.Metrics.ObservePhase(port, analyzerPort, phases[i])
		}
		det.Phases[port] = phases
		if phases[0] > opts.PhaseThreshold {
			det.Port1 = append(det.Port1, port)
		}
		if phases[1] > opts.PhaseThreshold {
			det.Port2 = append(det.Port2, port)
		}
		opts.logf("автоопределение P%d: S11 %.1f°, S22 %.1f°", port, phases[0]*180/math.Pi, phases[1]*180/math.Pi)
	}
	return det, nil
}

func measureStandardOnPort(ctx context.Context, a Analyzer, c CalUnit, opts Options, port int, std Standard) (*Network, error) {
	if err := c.SetPort(port, std, 0); err != nil {
		return nil, err
	}
	if err := sleepContext(ctx, opts.SettleDelay); err != nil {
		return nil, err
	}
	n, err := measure(a, opts.Channel)
	if err != nil {
		return nil, fmt.Errorf("измерение %s на порту P%d: %w", std, port, err)
	}
	return n, nil
}

// ResolvePort сверяет кандидатов автоопределения с подсказкой оператора (0 - подсказки нет).
// Без подсказки принимается единственный кандидат. С подсказкой требуется, чтобы кандидат
// был ровно один и совпадал с ней; иначе ошибка, а при force - подсказка с предупреждением.
func ResolvePort(candidates []int, hint int, label string, force bool, logger *log.Logger) (int, error) {
	if logger == nil {
		logger = log.Default()
	}
	if hint <= 0 {
		if len(candidates) == 1 {
			logger.Printf("%s: обнаружен порт CalUnit P%d", label, candidates[0])
			return candidates[0], nil
		}
		logger.Printf("%s: кандидаты %v, выбор невозможен", label, candidates)
		return 0, &AmbiguousMappingError{Label: label, Candidates: candidates}
	}

	if len(candidates) == 1 && candidates[0] == hint {
		logger.Printf("%s: порт CalUnit P%d подтвержден автоопределением", label, hint)
		return hint, nil
	}
	logger.Printf("%s: кандидаты %v, указан P%d", label, candidates, hint)
	if force {
		logger.Printf("ВНИМАНИЕ: %s: автоопределение не подтверждает P%d, используется указанный порт", label, hint)
		return hint, nil
	}
	return 0, &MappingMismatchError{Label: label, Hint: hint, Candidates: candidates}
}

// ResolveMapping разрешает оба порта анализатора. Диагностика печатается для обоих портов,
// даже если первый не разрешился; любая ошибка прерывает калибровку целиком.
func ResolveMapping(det *Detection, hints PortMapping, force bool, logger *log.Logger) (PortMapping, error) {
	p1, err1 := ResolvePort(det.Port1, hints.Port1, "port1", force, logger)
	p2, err2 := ResolvePort(det.Port2, hints.Port2, "port2", force, logger)
	if err := errors.Join(err1, err2); err != nil {
		return PortMapping{}, err
	}
	m := PortMapping{Port1: p1, Port2: p2}
	if err := m.Validate(); err != nil {
		return PortMapping{}, err
	}
	return m, nil
}
