package main

import "custody/cli"

func main() {
	cli.Execute()
}
