package main

import (
	"os"

	"github.com/StanleyZhang1992/stayd/cmd/stayd/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
