package main

import "github.com/audiolibrelab/platyrender/cmd"

func main() {
	cmd.Execute()
}
