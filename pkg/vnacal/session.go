package vnacal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.bug.st/serial"

	"github.com/momentics/vnacal/internal/util"
	"github.com/momentics/vnacal/pkg/scpi"
)

// Session - сеанс работы с парой приборов. Все операции сериализуются одним мьютексом
// на сеанс: команды разных вызывающих не должны перемежаться на одном канале.
type Session struct {
	Analyzer   *PNA
	CalUnit    *LibreCAL
	AnalyzerID Identity
	CalUnitID  Identity

	cfg *Config
	mu  sync.Mutex
}

// OpenSession подключается к CalUnit и анализатору, проверяет их идентификацию
// и настраивает формат передачи.
func OpenSession(ctx context.Context, cfg *Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{cfg: cfg}

	calunit, id, err := OpenCalUnit(cfg)
	if err != nil {
		return nil, err
	}
	s.CalUnit, s.CalUnitID = calunit, id

	analyzer, id, err := OpenAnalyzer(ctx, cfg)
	if err != nil {
		calunit.Close()
		return nil, err
	}
	s.Analyzer, s.AnalyzerID = analyzer, id

	cfg.logger().Printf("CalUnit: %s %s sn=%s fw=%s", s.CalUnitID.Manufacturer, s.CalUnitID.Model, s.CalUnitID.Serial, s.CalUnitID.Version)
	cfg.logger().Printf("анализатор: %s %s sn=%s fw=%s", s.AnalyzerID.Manufacturer, s.AnalyzerID.Model, s.AnalyzerID.Serial, s.AnalyzerID.Version)
	return s, nil
}

// OpenCalUnit открывает последовательный порт CalUnit и проверяет идентификацию.
func OpenCalUnit(cfg *Config) (*LibreCAL, Identity, error) {
	port, err := util.OpenPort(cfg.CalUnitPath, &serial.Mode{BaudRate: cfg.CalUnitBaudRate})
	if err != nil {
		return nil, Identity{}, fmt.Errorf("ошибка открытия порта %s: %w", cfg.CalUnitPath, err)
	}
	link, err := scpi.NewLink(port, scpi.Options{
		WriteTermination: "\r\n",
		Timeout:          cfg.CalUnitTimeout,
		Logger:           cfg.traceLogger("librecal "),
	})
	if err != nil {
		port.Close()
		return nil, Identity{}, err
	}
	lc := NewLibreCAL(link, cfg.CoefficientSet)
	id, err := lc.Identify()
	if err != nil {
		lc.Close()
		return nil, id, err
	}
	return lc, id, nil
}

// OpenAnalyzer подключается к анализатору, проверяет модель и настраивает передачу данных.
func OpenAnalyzer(ctx context.Context, cfg *Config) (*PNA, Identity, error) {
	port, err := util.DialSocket(ctx, cfg.AnalyzerAddress, DefaultSocketPort)
	if err != nil {
		return nil, Identity{}, fmt.Errorf("ошибка подключения к анализатору %s: %w", cfg.AnalyzerAddress, err)
	}
	link, err := scpi.NewLink(port, scpi.Options{
		WriteTermination: "\n",
		Timeout:          cfg.AnalyzerTimeout,
		Logger:           cfg.traceLogger("pna "),
	})
	if err != nil {
		port.Close()
		return nil, Identity{}, err
	}

	pna := NewPNA(link)
	id, err := pna.Identify()
	if err != nil {
		pna.Close()
		return nil, id, err
	}
	if err := pna.ConfigureTransfer(cfg.ByteOrder, cfg.DataFormat()); err != nil {
		pna.Close()
		return nil, id, err
	}
	if err := pna.SetSnpStoreFormat(StoreComplex); err != nil {
		pna.Close()
		return nil, id, err
	}
	return pna, id, nil
}

// ErrBusy возвращает TryCalibrate, если сеанс занят другой операцией.
var ErrBusy = errors.New("сеанс занят другой операцией")

// Calibrate выполняет полную калибровку в рамках сеанса.
func (s *Session) Calibrate(ctx context.Context, opts Options) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calibrate(ctx, opts)
}

// TryCalibrate как Calibrate, но не ждет освобождения сеанса.
func (s *Session) TryCalibrate(ctx context.Context, opts Options) (*Run, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()
	return s.calibrate(ctx, opts)
}

func (s *Session) calibrate(ctx context.Context, opts Options) (*Run, error) {
	if opts.Logger == nil {
		opts.Logger = s.cfg.logger()
	}
	return NewCalibrator(s.Analyzer, s.CalUnit, opts).Run(ctx)
}

// CalSets возвращает каталог наборов калибровки анализатора.
func (s *Session) CalSets() ([]CalSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Analyzer.CalSets()
}

// Close закрывает оба канала.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.Analyzer != nil {
		errs = append(errs, s.Analyzer.Close())
	}
	if s.CalUnit != nil {
		errs = append(errs, s.CalUnit.Close())
	}
	return errors.Join(errs...)
}
