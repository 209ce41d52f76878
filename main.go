package main

import "codesig/cmd"

func main() {
	cmd.Execute()
}
