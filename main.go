package main

import (
	"context"
	"fmt"
	"os"

	"github.com/clinicdesk/patientkeeper/cmd"
)

func main() {
	if err := cmd.RootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
