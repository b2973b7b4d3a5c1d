package main

import "github.com/ogulcanaydogan/gasfree-sentinel/internal/cli"

func main() {
	cli.Execute()
}
