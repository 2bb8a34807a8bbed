package main

import "github.com/wasinlab/linerelay/cmd"

func main() {
	cmd.Execute()
}
