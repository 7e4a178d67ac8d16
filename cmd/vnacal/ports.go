package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/momentics/vnacal/internal/util"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "Показать последовательные порты, к которым может быть подключен LibreCAL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := util.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "последовательные порты не найдены")
			return nil
		}
		for _, p := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}
