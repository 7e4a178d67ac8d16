package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/momentics/vnacal/pkg/scpi"
	"github.com/momentics/vnacal/pkg/vnacal"
)

var (
	cfg = vnacal.DefaultConfig()

	verbose   bool
	byteOrder string
)

var rootCmd = &cobra.Command{
	Use:   "vnacal",
	Short: "SOLT-калибровка анализатора PNA с помощью LibreCAL",
	Long: `vnacal управляет электронным калибровочным модулем LibreCAL и анализатором цепей
серии PNA: определяет подключение портов, измеряет меры SHORT, OPEN, LOAD и THROUGH,
вычисляет 12-членную модель ошибок и записывает ее в анализатор как набор калибровки.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		order, err := scpi.ParseByteOrder(byteOrder)
		if err != nil {
			return err
		}
		cfg.ByteOrder = order
		cfg.Trace = verbose
		cfg.Logger = log.Default()
		return nil
	},
}

// Execute запускает корневую команду.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfg.CalUnitPath, "calunit", cfg.CalUnitPath, "последовательный порт LibreCAL")
	f.IntVar(&cfg.CalUnitBaudRate, "baud", cfg.CalUnitBaudRate, "скорость порта LibreCAL")
	f.DurationVar(&cfg.CalUnitTimeout, "calunit-timeout", cfg.CalUnitTimeout, "тайм-аут ответа LibreCAL")
	f.StringVar(&cfg.CoefficientSet, "coeff-set", cfg.CoefficientSet, "набор эталонных коэффициентов LibreCAL")
	f.StringVar(&cfg.AnalyzerAddress, "analyzer", cfg.AnalyzerAddress, "адрес анализатора host[:port]")
	f.DurationVar(&cfg.AnalyzerTimeout, "timeout", cfg.AnalyzerTimeout, "тайм-аут ответа анализатора")
	f.BoolVar(&cfg.BinaryTransfers, "binary", cfg.BinaryTransfers, "передавать данные блоками REAL,32 вместо ASCII")
	f.StringVar(&byteOrder, "byte-order", "swap", "порядок байт двоичных блоков: norm или swap")
	f.BoolVarP(&verbose, "verbose", "v", false, "выводить каждую команду и ответ")

	rootCmd.AddCommand(calibrateCmd, portsCmd, snpCmd, idealCmd, serveCmd)
}
