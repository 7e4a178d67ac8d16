// Package main - утилита SOLT-калибровки анализатора PNA модулем LibreCAL.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
