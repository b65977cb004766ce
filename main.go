package main

import "github.com/Tiliavir/quarter-tracker/cmd"

func main() {
	cmd.Execute()
}
