// The main package for the dolma-harvest executable.
package main

import (
	"github.com/JakeFAU/dolma-harvest/cmd"
)

func main() {
	cmd.Execute()
}
