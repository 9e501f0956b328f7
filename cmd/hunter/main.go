package main

import "hunter/internal/cli"

func main() {
	cli.Execute()
}
