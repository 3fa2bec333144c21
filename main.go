package main

import "github.com/sheetpilot/sheetpilot/cmd"

func main() {
	cmd.Execute()
}
