package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/pthm/grantor/internal/update"
	"github.com/pthm/grantor/internal/version"
)

var versionCheck bool

func init() {
	// If version wasn't set via ldflags, try to get it from Go module info.
	// This works when installed via "go install github.com/pthm/grantor/cmd/grantor@version".
	if version.Version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.Main.Version != "" && info.Main.Version != "(devel)" {
				version.Version = info.Main.Version
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					if len(setting.Value) >= 7 {
						version.Commit = setting.Value[:7]
					} else {
						version.Commit = setting.Value
					}
				case "vcs.time":
					version.Date = setting.Value
				}
			}
		}
	}

	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check for a newer release")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.Info())

		if versionCheck {
			info, err := update.NewChecker().Check(cmd.Context())
			if err != nil {
				return fmt.Errorf("checking for updates: %w", err)
			}
			if info.UpdateAvailable {
				fmt.Printf("A newer release is available: %s\n", info.LatestVersion)
			} else {
				fmt.Println("You are on the latest release.")
			}
		}
		return nil
	},
}
