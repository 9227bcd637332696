package main

import "github.com/devpulse/devpulse/cmd"

func main() {
	cmd.Execute()
}
