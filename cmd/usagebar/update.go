package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/usagebar/usagebar/internal/appupdate"
	"github.com/usagebar/usagebar/internal/version"
)

func newUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Check whether a newer usagebar release is available.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := appupdate.Check(cmd.Context(), appupdate.CheckOptions{
				CurrentVersion: version.Version,
			})
			if err != nil {
				return err
			}
			if result.CurrentVersion == "" {
				fmt.Println("development build; update check skipped")
				return nil
			}
			if !result.UpdateAvailable {
				fmt.Printf("usagebar %s is up to date\n", result.CurrentVersion)
				return nil
			}
			fmt.Printf("usagebar %s is available (you have %s)\n", result.LatestVersion, result.CurrentVersion)
			fmt.Println("upgrade with: " + result.UpgradeHint)
			return nil
		},
	}
}
