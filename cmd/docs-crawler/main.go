package main

import (
	cmd "github.com/rohmanhakim/docs-archiver/internal/cli"
)

func main() {
	cmd.Execute()
}
