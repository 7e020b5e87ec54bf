package main

import "vx-continuous/internal/cli"

func main() {
	cli.Execute()
}
