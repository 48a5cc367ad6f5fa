package main

import "github.com/neoke/pocket/cmd/pocket/cmd"

func main() {
	cmd.Execute()
}
