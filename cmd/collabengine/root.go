package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const banner = `
  ___      _ _      _     ___           _
 / __|___ | | |__ _| |__ | __|_ _  __ _(_)_ _  ___
| (__/ _ \| | / _' | '_ \| _|| ' \/ _' | | ' \/ -_)
 \___\___/|_|_\__,_|_.__/|___|_||_\__, |_|_||_\___|
                                  |___/
`

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "collabengine",
		Short:         "CollabEngine - multi-agent collaboration engine",
		Long:          color.CyanString(banner) + "\nCoordinates collaboration, conflicts, tasks, broadcasts and negotiations between agents.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newHealthCmd(),
		newVersionCmd(),
	)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w\n\n%s", err, cmd.UsageString())
	})
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "CollabEngine %s\n", color.GreenString(Version))
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		},
	}
}
