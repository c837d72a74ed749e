package main

import "github.com/audiolibrelab/audiort/cmd"

func main() {
	cmd.Execute()
}
