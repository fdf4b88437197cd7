package main

import "github.com/hookrelay/hookrelay/cmd"

func main() {
	cmd.Execute()
}
