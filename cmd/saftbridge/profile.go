package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/saftbridge/saftbridge/cmd/saftbridge/cli"
	"github.com/saftbridge/saftbridge/internal/app"
)

var profileJSON bool

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Company profile helpers",
}

var profileValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Load a profile and report what it resolves to",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, _ := app.LoadConfig()
		path := resolveProfilePath(cfg)
		if len(args) == 1 {
			path = args[0]
		}
		code := cli.ValidateProfileCommand(cli.ProfileValidateOptions{
			Path:       path,
			JSONOutput: profileJSON,
			Stdout:     cmd.OutOrStdout(),
			Stderr:     cmd.ErrOrStderr(),
		})
		if code != 0 {
			os.Exit(code)
		}
	},
}

func init() {
	profileValidateCmd.Flags().BoolVar(&profileJSON, "json", false, "emit the summary as JSON")
	profileCmd.AddCommand(profileValidateCmd)
}
