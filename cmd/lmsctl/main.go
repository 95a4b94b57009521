package main

import "coursehub/cmd/lmsctl/command"

func main() {
	command.Execute()
}
