package main

import "iox16/host/cmd/iox16-host/cmd"

func main() {
	cmd.Execute()
}
