// The main package for the graded-card-estimator executable.
package main

import (
	"github.com/JakeFAU/graded-card-estimator/cmd"
)

func main() {
	cmd.Execute()
}
