package main

import "swx-monitor/internal/cli"

func main() {
	cli.Execute()
}
