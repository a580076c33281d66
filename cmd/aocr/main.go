package main

import (
	"os"

	"github.com/MeKo-Tech/aocr/cmd/aocr/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
