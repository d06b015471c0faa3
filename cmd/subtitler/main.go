package main

import (
	"ai-subtitler/cmd/subtitler/cmd"
)

func main() {
	cmd.Execute()
}
