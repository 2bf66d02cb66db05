package main

import "globalbangla.org/internal/cli"

func main() {
	cli.Execute()
}
