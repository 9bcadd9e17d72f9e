package main

import "stereocast/cmd/stereocast/commands"

func main() {
	commands.Execute()
}
