package main

import "github.com/encodeous/ribd/cmd"

func main() {
	cmd.Execute()
}
