package main

import "github.com/lshtram/openspace-sync/cmd"

func main() {
	cmd.Execute()
}
