package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/gophertribe/devtool/build"
)

// hid needs cgo, so builds for another platform run inside the build image.
const buildImage = "gophertribe/gobuild:1.25-bookworm"

func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the fezhat command line into dist/",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			version, _ := cmd.Root().PersistentFlags().GetString("version")
			goos, _ := flags.GetString("os")
			goarch, _ := flags.GetString("arch")
			if pi, _ := flags.GetBool("pi"); pi {
				goos, goarch = "linux", "arm64"
			}
			target, _ := flags.GetString("target")

			if target != "" {
				// already inside the build image
				return goBuild(version, goos, target)
			}
			if goos == runtime.GOOS && goarch == runtime.GOARCH {
				return goBuild(version, goos, goarch)
			}
			noCache, _ := flags.GetBool("no-cache")
			return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", goos, goarch),
				[]string{"build", "--version", version, "--os", goos, "--target", goarch},
				build.DockerBuildOpts{NoCache: noCache, Image: buildImage})
		},
	}
	cmd.Flags().Bool("no-cache", false, "do not use the docker cache for cross builds")
	cmd.Flags().Bool("pi", false, "build for a 64-bit Raspberry Pi (linux/arm64)")
	cmd.Flags().String("os", runtime.GOOS, "target os")
	cmd.Flags().String("arch", runtime.GOARCH, "target arch")
	cmd.Flags().String("target", "", "arch to cross-compile for inside the build image")
	_ = cmd.Flags().MarkHidden("target")
	return cmd
}

func goBuild(version, goos, goarch string) error {
	return build.GoBuild("dist/fezhat", "./cmd/fezhat", build.GoBuildOpts{
		Version:       version,
		InjectVersion: true,
		ConfigPackage: "main",
		EnableCgo:     true,
		Arch:          goarch,
		OS:            goos,
	})
}
