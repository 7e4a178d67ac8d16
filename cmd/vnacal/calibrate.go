package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/momentics/vnacal/pkg/vnacal"
)

// calFlags - параметры прогона калибровки, общие для calibrate и serve.
var calFlags struct {
	name           string
	channel        int
	calunitPorts   int
	settle         time.Duration
	phaseThreshold float64
	noStimulus     bool
	noResample     bool
}

var (
	hintPort1, hintPort2 int
	force, noDetect      bool
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Выполнить SOLT-калибровку и записать набор калибровки в анализатор",
	Args:  cobra.NoArgs,
	RunE:  runCalibrate,
}

func init() {
	f := calibrateCmd.Flags()
	f.IntVar(&hintPort1, "port1", 0, "порт LibreCAL, подключенный к порту 1 анализатора")
	f.IntVar(&hintPort2, "port2", 0, "порт LibreCAL, подключенный к порту 2 анализатора")
	f.BoolVarP(&force, "force", "f", false, "при расхождении с автоопределением использовать указанные порты")
	f.BoolVar(&noDetect, "no-detect", false, "не определять порты автоматически (нужны --port1 и --port2)")
	addCalibrationFlags(calibrateCmd)
}

func addCalibrationFlags(cmd *cobra.Command) {
	def := vnacal.DefaultOptions()
	f := cmd.Flags()
	f.StringVar(&calFlags.name, "name", def.CalSetName, "имя набора калибровки")
	f.IntVar(&calFlags.channel, "channel", def.Channel, "канал анализатора")
	f.IntVar(&calFlags.calunitPorts, "calunit-ports", def.CalUnitPorts, "число портов LibreCAL")
	f.DurationVar(&calFlags.settle, "settle", def.SettleDelay, "пауза после переключения меры")
	f.Float64Var(&calFlags.phaseThreshold, "phase-threshold", def.PhaseThreshold, "порог разности фаз OPEN/SHORT, рад")
	f.BoolVar(&calFlags.noStimulus, "no-stimulus", false, "не переносить настройки стимула при активации набора")
	f.BoolVar(&calFlags.noResample, "no-resample", false, "требовать совпадения частот эталонов с измерением")
}

// calibrationOptions собирает Options из флагов.
func calibrationOptions() vnacal.Options {
	opts := vnacal.DefaultOptions()
	opts.CalSetName = calFlags.name
	opts.Channel = calFlags.channel
	opts.CalUnitPorts = calFlags.calunitPorts
	opts.SettleDelay = calFlags.settle
	opts.PhaseThreshold = calFlags.phaseThreshold
	opts.ApplyStimulus = !calFlags.noStimulus
	opts.ResampleIdeals = !calFlags.noResample
	opts.Logger = cfg.Logger
	return opts
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	opts := calibrationOptions()
	opts.Hints = vnacal.PortMapping{Port1: hintPort1, Port2: hintPort2}
	opts.Force = force
	opts.SkipDetection = noDetect

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := vnacal.OpenSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	run, err := s.Calibrate(ctx, opts)
	if err != nil {
		return fmt.Errorf("калибровка не выполнена: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "набор калибровки %q активирован: %s, %d точек\n",
		opts.CalSetName, run.Mapping, len(run.Model.Frequencies))
	return nil
}
