package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "docuquery"}

	root.AddCommand(serveCMD(), schemaCMD(), ingestCMD(), tokenCMD())
	_ = root.Execute()
}
