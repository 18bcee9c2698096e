package main

import (
	"fmt"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	boldColor    = color.New(color.Bold)
)

func printSuccess(format string, args ...any) {
	successColor.Printf("✓ %s\n", fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	errorColor.Printf("✗ %s\n", fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	warningColor.Printf("⚠ %s\n", fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	infoColor.Printf("ℹ %s\n", fmt.Sprintf(format, args...))
}

func printBold(format string, args ...any) {
	boldColor.Println(fmt.Sprintf(format, args...))
}
