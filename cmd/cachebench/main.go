package main

import "github.com/aweris/cachebench/cmd/cachebench/cmd"

func main() {
	cmd.Execute()
}
