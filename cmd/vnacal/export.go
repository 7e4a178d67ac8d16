package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/momentics/vnacal/pkg/vnacal"
)

var (
	outputPath string
	snpChannel int
	snpPorts   int
)

var snpCmd = &cobra.Command{
	Use:   "snp",
	Short: "Сохранить текущие S-параметры канала в формате Touchstone",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pna, _, err := vnacal.OpenAnalyzer(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pna.Close()

		if err := pna.SelectFirstTrace(snpChannel); err != nil {
			return err
		}
		n, err := pna.SnpData(snpChannel, snpPorts)
		if err != nil {
			return err
		}
		n.Name = cfg.AnalyzerAddress
		return writeNetwork(cmd, n)
	},
}

var idealCmd = &cobra.Command{
	Use:   "ideal LABEL",
	Short: "Сохранить эталонную сеть LibreCAL (например, P1_OPEN или P12_THROUGH) в формате Touchstone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lc, _, err := vnacal.OpenCalUnit(cfg)
		if err != nil {
			return err
		}
		defer lc.Close()

		n, err := lc.IdealNetwork(args[0])
		if err != nil {
			return err
		}
		return writeNetwork(cmd, n)
	},
}

func init() {
	for _, c := range []*cobra.Command{snpCmd, idealCmd} {
		c.Flags().StringVarP(&outputPath, "output", "o", "", "файл для записи (по умолчанию stdout)")
	}
	snpCmd.Flags().IntVar(&snpChannel, "channel", 1, "канал анализатора")
	snpCmd.Flags().IntVar(&snpPorts, "ports", 2, "число портов")
}

func writeNetwork(cmd *cobra.Command, n *vnacal.Network) error {
	if outputPath == "" {
		return vnacal.WriteTouchstone(cmd.OutOrStdout(), n)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := vnacal.WriteTouchstone(f, n); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
