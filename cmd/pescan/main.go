package main

import "github.com/glimps-re/pescan/cmd/cli"

func main() {
	cli.Main()
}
