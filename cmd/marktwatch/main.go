// cmd/marktwatch/main.go
package main

import (
	"github.com/roelvdh/marktwatch/internal/cli"
)

func main() {
	// Signal handling lives in the serve command; one-shot commands finish
	// quickly enough that default interrupt behavior is fine.
	cli.Execute()
}
