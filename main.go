package main

import "github.com/chukul/chatctl/cmd"

func main() {
	cmd.Execute()
}
