package vnacal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/momentics/vnacal/internal/metrics"
)

// DefaultCalSetName - имя набора калибровки в памяти анализатора.
const DefaultCalSetName = "LibreCAL"

// State - состояние автомата калибровки.
type State int

const (
	StateIdle State = iota
	StateDetecting
	StateMeasuring
	StateSolving
	StateWriting
	StateActivated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDetecting:
		return "detecting"
	case StateMeasuring:
		return "measuring"
	case StateSolving:
		return "solving"
	case StateWriting:
		return "writing"
	case StateActivated:
		return "activated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options задает параметры одного прогона калибровки.
type Options struct {
	// Hints - порты CalUnit, указанные оператором (0 - не указан).
	Hints PortMapping
	// Force понижает расхождение автоопределения с подсказками до предупреждения.
	Force bool
	// SkipDetection использует подсказки без автоопределения; нужны обе.
	SkipDetection bool

	CalSetName     string
	Channel        int
	CalUnitPorts   int
	SettleDelay    time.Duration
	PhaseThreshold float64
	ApplyStimulus  bool
	// ResampleIdeals пересчитывает эталонные сети на частоты измерения.
	ResampleIdeals bool

	Solver  Solver
	Metrics *metrics.Recorder
	Logger  *log.Logger
}

// DefaultOptions возвращает Options со значениями по умолчанию.
func DefaultOptions() Options {
	return Options{
		CalSetName:     DefaultCalSetName,
		Channel:        1,
		CalUnitPorts:   4,
		SettleDelay:    100 * time.Millisecond,
		PhaseThreshold: DefaultPhaseThreshold,
		ApplyStimulus:  true,
		ResampleIdeals: true,
		Solver:         SOLT{},
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.CalSetName == "" {
		o.CalSetName = def.CalSetName
	}
	if o.Channel <= 0 {
		o.Channel = def.Channel
	}
	if o.CalUnitPorts <= 0 {
		o.CalUnitPorts = def.CalUnitPorts
	}
	if o.PhaseThreshold <= 0 {
		o.PhaseThreshold = def.PhaseThreshold
	}
	if o.Solver == nil {
		o.Solver = def.Solver
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

func (o Options) logf(format string, args ...interface{}) {
	if o.Logger != nil {
		o.Logger.Printf(format, args...)
	}
}

// Run - рабочий набор одного прогона калибровки.
type Run struct {
	Mapping   PortMapping
	Detection *Detection
	// Pairs - пары (эталон, измерение) в порядке SHORT, OPEN, LOAD, THROUGH.
	Pairs []StandardPair
	Model *ErrorModel
}

// Calibrator проводит SOLT-калибровку: автоопределение портов, измерение мер, решение
// и запись модели ошибок в анализатор. Прогон владеет состоянием анализатора
// (непрерывная развертка, коррекция) и восстанавливает его при любом исходе.
type Calibrator struct {
	analyzer Analyzer
	calunit  CalUnit
	opts     Options
	state    State
	standard Standard

	restoreContinuous bool
	restoreCorrection bool
}

// NewCalibrator создает автомат калибровки.
func NewCalibrator(a Analyzer, c CalUnit, opts Options) *Calibrator {
	return &Calibrator{analyzer: a, calunit: c, opts: opts.withDefaults()}
}

// State возвращает текущее состояние автомата.
func (c *Calibrator) State() State { return c.state }

func (c *Calibrator) setState(s State) {
	c.state = s
	if s == StateMeasuring {
		c.opts.logf("состояние: %s(%s)", s, c.standard)
	} else {
		c.opts.logf("состояние: %s", s)
	}
	c.opts.Metrics.SetState(s.String())
}

// Run выполняет калибровку. Набор калибровки создается только если все измерения
// и решение прошли успешно.
func (c *Calibrator) Run(ctx context.Context) (run *Run, err error) {
	if c.state != StateIdle {
		return nil, fmt.Errorf("калибровка уже выполнялась, состояние %s", c.state)
	}
	start := time.Now()
	defer func() {
		if rerr := c.restore(); rerr != nil {
			if err == nil {
				err = rerr
			} else {
				c.opts.logf("ошибка восстановления состояния анализатора: %v", rerr)
			}
		}
		outcome := "success"
		if err != nil {
			outcome = "failure"
			if IsMappingError(err) {
				outcome = "mapping_error"
			}
			c.setState(StateFailed)
		}
		c.opts.Metrics.RunFinished(outcome, time.Since(start))
	}()

	if err := c.enter(); err != nil {
		return nil, err
	}

	run = &Run{}
	if run.Mapping, run.Detection, err = c.resolveMapping(ctx); err != nil {
		return nil, err
	}
	c.opts.logf("сопоставление портов: %s", run.Mapping)

	measured := make([]*Network, len(CalibrationStandards))
	for i, std := range CalibrationStandards {
		c.standard = std
		c.setState(StateMeasuring)
		if measured[i], err = c.measureStandard(ctx, run.Mapping, std); err != nil {
			return nil, err
		}
		if i > 0 && !frequenciesMatch(measured[0].Frequencies, measured[i].Frequencies) {
			return nil, &SweepMismatchError{What: "измерение " + std.String()}
		}
	}
	if err := c.restore(); err != nil {
		return nil, err
	}

	c.setState(StateSolving)
	freqs := measured[0].Frequencies
	for i, std := range CalibrationStandards {
		ideal, err := c.idealNetwork(std, run.Mapping, freqs)
		if err != nil {
			return nil, err
		}
		run.Pairs = append(run.Pairs, StandardPair{Standard: std, Ideal: ideal, Measured: measured[i]})
	}
	if run.Model, err = c.opts.Solver.Solve(run.Pairs); err != nil {
		return nil, fmt.Errorf("ошибка решения SOLT: %w", err)
	}

	c.setState(StateWriting)
	if err := WriteCalSet(c.analyzer, c.opts.CalSetName, run.Model, c.opts.ApplyStimulus, c.opts.Logger); err != nil {
		return nil, err
	}
	c.setState(StateActivated)
	return run, nil
}

// enter выключает коррекцию и непрерывную развертку и выбирает измерение канала.
func (c *Calibrator) enter() error {
	c.restoreCorrection = true
	if err := c.analyzer.SetCorrectionState(false); err != nil {
		return fmt.Errorf("ошибка отключения коррекции: %w", err)
	}
	c.restoreContinuous = true
	if err := c.analyzer.SetContinuous(false); err != nil {
		return fmt.Errorf("ошибка отключения непрерывной развертки: %w", err)
	}
	return c.analyzer.SelectFirstTrace(c.opts.Channel)
}

// restore возвращает непрерывную развертку и коррекцию, если прогон их выключал.
// Повторный вызов ничего не делает.
func (c *Calibrator) restore() error {
	var errs []error
	if c.restoreContinuous {
		c.restoreContinuous = false
		if err := c.analyzer.SetContinuous(true); err != nil {
			errs = append(errs, fmt.Errorf("ошибка включения непрерывной развертки: %w", err))
		}
	}
	if c.restoreCorrection {
		c.restoreCorrection = false
		if err := c.analyzer.SetCorrectionState(true); err != nil {
			errs = append(errs, fmt.Errorf("ошибка включения коррекции: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Calibrator) resolveMapping(ctx context.Context) (PortMapping, *Detection, error) {
	if c.opts.SkipDetection {
		if c.opts.Hints.Port1 <= 0 || c.opts.Hints.Port2 <= 0 {
			return PortMapping{}, nil, errors.New("без автоопределения нужно указать оба порта")
		}
		return c.opts.Hints, nil, c.opts.Hints.Validate()
	}
	c.setState(StateDetecting)
	det, err := DetectPorts(ctx, c.analyzer, c.calunit, c.opts)
	if err != nil {
		return PortMapping{}, nil, fmt.Errorf("ошибка автоопределения портов: %w", err)
	}
	m, err := ResolveMapping(det, c.opts.Hints, c.opts.Force, c.opts.Logger)
	return m, det, err
}

func (c *Calibrator) measureStandard(ctx context.Context, m PortMapping, std Standard) (*Network, error) {
	if std == StandardThrough {
		if err := c.calunit.SetPort(m.Port1, std, m.Port2); err != nil {
			return nil, err
		}
	} else {
		for _, port := range []int{m.Port1, m.Port2} {
			if err := c.calunit.SetPort(port, std, 0); err != nil {
				return nil, err
			}
		}
	}
	if err := sleepContext(ctx, c.opts.SettleDelay); err != nil {
		return nil, err
	}

	start := time.Now()
	n, err := measure(c.analyzer, c.opts.Channel)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения данных для эталона %s: %w", std, err)
	}
	c.opts.Metrics.ObserveMeasurement(std.String(), time.Since(start))
	n.Name = std.String()
	return n, nil
}

// idealNetwork собирает эталонную двухпортовую сеть меры для сопоставления m.
func (c *Calibrator) idealNetwork(std Standard, m PortMapping, freqs []float64) (*Network, error) {
	var n *Network
	var err error
	if std == StandardThrough {
		n, err = idealThrough(c.calunit, m)
	} else {
		n, err = c.idealReflect(std, m, freqs)
	}
	if err != nil {
		return nil, fmt.Errorf("эталон %s: %w", std, err)
	}
	n.Name = std.String()
	return c.align(n, freqs)
}

// idealThrough получает эталон перемычки. Коэффициент хранится для пары портов по
// возрастанию; если порт анализатора 1 подключен к старшему порту, сеть переворачивается.
func idealThrough(c CalUnit, m PortMapping) (*Network, error) {
	n, err := c.IdealNetwork(IdealLabel(StandardThrough, m.Port1, m.Port2))
	if err != nil {
		return nil, err
	}
	if m.Port1 > m.Port2 {
		return n.Flipped()
	}
	return n, nil
}

func (c *Calibrator) idealReflect(std Standard, m PortMapping, freqs []float64) (*Network, error) {
	var sides [2]*Network
	for i, port := range []int{m.Port1, m.Port2} {
		n, err := c.calunit.IdealNetwork(IdealLabel(std, port, 0))
		if err != nil {
			return nil, err
		}
		if sides[i], err = c.align(n, freqs); err != nil {
			return nil, err
		}
	}
	return TwoPortReflect(sides[0], sides[1])
}

func (c *Calibrator) align(n *Network, freqs []float64) (*Network, error) {
	if c.opts.ResampleIdeals {
		return n.Interpolate(freqs)
	}
	if !frequenciesMatch(n.Frequencies, freqs) {
		return nil, &SweepMismatchError{What: n.Name}
	}
	return n, nil
}
