package main

import (
	"fuelwatch/internal/cli"
)

func main() {
	cli.Execute()
}
