package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/StormyCloudInc/selector-vanitygen/internal/updater"
	"github.com/StormyCloudInc/selector-vanitygen/internal/version"
)

type versionResult struct {
	Version string           `json:"version" yaml:"version"`
	OS      string           `json:"os" yaml:"os"`
	Arch    string           `json:"arch" yaml:"arch"`
	Latest  *updater.Release `json:"latest,omitempty" yaml:"latest,omitempty"`
}

func (a *app) versionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version, optionally checking for a newer release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := versionResult{Version: version.Version, OS: runtime.GOOS, Arch: runtime.GOARCH}
			if check {
				rel, err := (&updater.Client{}).Check(cmd.Context())
				if err != nil {
					return fmt.Errorf("checking for updates: %w", err)
				}
				res.Latest = rel
			}
			return render(a.stdout, a.cfg.Output, res, func(w io.Writer) error {
				fmt.Fprintf(w, "selectorgen %s %s/%s\n", res.Version, res.OS, res.Arch)
				switch {
				case !check:
				case res.Latest == nil:
					fmt.Fprintln(w, "up to date")
				default:
					fmt.Fprintf(w, "newer release %s available: %s\n", res.Latest.TagName, res.Latest.HTMLURL)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "query GitHub for a newer release")
	return cmd
}

func (a *app) updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Replace this binary with the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := &updater.Client{}
			rel, err := c.Check(cmd.Context())
			if err != nil {
				return fmt.Errorf("checking for updates: %w", err)
			}
			if rel == nil {
				fmt.Fprintf(a.stdout, "selectorgen %s is up to date\n", version.Version)
				return nil
			}

			exe, err := updater.Executable()
			if err != nil {
				return err
			}
			log := a.log.WithField("release", rel.TagName)
			log.Info("downloading update")

			last := time.Now()
			tmp, err := c.Download(cmd.Context(), rel, filepath.Dir(exe), func(n int64) {
				if time.Since(last) > time.Second {
					last = time.Now()
					log.WithField("bytes", n).Debug("download progress")
				}
			})
			if err != nil {
				return err
			}
			if err := updater.Apply(tmp, exe); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "updated to %s\n", rel.TagName)
			return nil
		},
	}
}
