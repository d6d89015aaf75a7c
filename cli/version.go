package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"ytaddon/addon"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the add-on version",
		Args:  cobra.NoArgs,
		// Skip config loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ytaddon %s (%s %s/%s)\n", addon.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
