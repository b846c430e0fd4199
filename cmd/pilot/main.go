package main

import "github.com/semmidev/backuppilot/internal/cli"

func main() {
	cli.Execute()
}
