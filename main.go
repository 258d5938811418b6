package main

import "localpiece/cmd"

func main() {
	cmd.Execute()
}
