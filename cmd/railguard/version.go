package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/railguard/pkg/actions/builtin"
	"mercator-hq/railguard/pkg/cli"
	"mercator-hq/railguard/pkg/rails/stages"
)

var (
	// Version is the semantic version (set by build flags)
	Version = "0.1.0"
	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"
	// BuildDate is the build timestamp (set by build flags)
	BuildDate = "unknown"
)

type versionInfo struct {
	Version   string   `json:"version"`
	GitCommit string   `json:"git_commit"`
	BuildDate string   `json:"build_date"`
	GoVersion string   `json:"go_version"`
	Platform  string   `json:"platform"`
	Stages    []string `json:"stages"`
	Actions   []string `json:"actions"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the build version along with the stages and built-in actions
this binary supports.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		info := versionInfo{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			Stages: []string{
				stages.SanitizerStageName,
				stages.JailbreakStageName,
				stages.TopicalStageName,
				stages.FactCheckStageName,
			},
			Actions: builtin.Names(),
		}

		out := cmd.OutOrStdout()
		if format == cli.FormatJSON {
			return cli.NewFormatter(format).FormatTo(out, info)
		}
		fmt.Fprintf(out, "Railguard %s\n", info.Version)
		fmt.Fprintf(out, "Git Commit: %s\n", info.GitCommit)
		fmt.Fprintf(out, "Build Date: %s\n", info.BuildDate)
		fmt.Fprintf(out, "Go Version: %s\n", info.GoVersion)
		fmt.Fprintf(out, "OS/Arch: %s\n", info.Platform)
		fmt.Fprintf(out, "Stages: %s\n", strings.Join(info.Stages, ", "))
		fmt.Fprintf(out, "Actions: %s\n", strings.Join(info.Actions, ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
