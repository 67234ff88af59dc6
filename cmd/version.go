package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Actual version can be specified in build command.
var version = "unknown"

type versionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(_ *cobra.Command, _ []string) {
		info := currentVersion(version, debug.ReadBuildInfo)
		if viper.GetBool("json") {
			_ = json.NewEncoder(os.Stdout).Encode(info)
			return
		}
		fmt.Println(info)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// currentVersion prefers the version set at build time and falls back to
// the module version recorded by go install.
func currentVersion(set string, buildInfo func() (*debug.BuildInfo, bool)) versionInfo {
	v := set
	if v == "unknown" {
		if bi, ok := buildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			v = bi.Main.Version
		}
	}
	return versionInfo{
		Version:   v,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (v versionInfo) String() string {
	return fmt.Sprintf("%s %s (%s, %s)", app, v.Version, v.GoVersion, v.Platform)
}
