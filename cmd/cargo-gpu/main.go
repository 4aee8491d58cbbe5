package main

import "cargogpu/internal/cli"

func main() {
	cli.Execute()
}
