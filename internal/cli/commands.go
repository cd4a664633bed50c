package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/StormyCloudInc/selector-vanitygen/internal/compute"
	"github.com/StormyCloudInc/selector-vanitygen/internal/nonce"
	"github.com/StormyCloudInc/selector-vanitygen/internal/searchspec"
	"github.com/StormyCloudInc/selector-vanitygen/internal/store"
	"github.com/StormyCloudInc/selector-vanitygen/internal/validator"
)

func (a *app) devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the devices of the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := compute.New(a.cfg.Backend, compute.Options{Workers: a.cfg.Workers})
			if err != nil {
				return err
			}
			devices, err := backend.Devices()
			if err != nil {
				return err
			}
			if devices == nil {
				devices = []compute.Device{}
			}
			return render(a.stdout, a.cfg.Output, devices, func(w io.Writer) error {
				if len(devices) == 0 {
					fmt.Fprintf(w, "no %s devices found\n", backend.Name())
					return nil
				}
				for _, d := range devices {
					fmt.Fprintln(w, d.String())
				}
				return nil
			})
		},
	}
}

type verifyResult struct {
	solutionView `yaml:",inline"`
	Match        *bool `json:"match,omitempty" yaml:"match,omitempty"`
}

func (a *app) verifyCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "verify <template> <outer> <inner>",
		Short: "Hash the message for one nonce pair",
		Long: `verify rebuilds the message for an outer and inner nonce, both given in hex,
and prints its Keccak-256 digest. With --target it also reports whether the
selector matches, exiting 1 when it does not.`,
		Example: "  selectorgen verify 'mint00000000(address)' 03 01E240 --target 0x1234abcd",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := parsePair(args[1], args[2])
			if err != nil {
				return err
			}
			t := "00000000"
			if target != "" {
				t = target
			}
			spec, err := searchspec.Parse(t, args[0], "0")
			if err != nil {
				return err
			}

			sol, ok := validator.Verify(spec, pair)
			res := verifyResult{solutionView: newSolutionView(sol)}
			if target != "" {
				res.Match = &ok
			}
			if err := render(a.stdout, a.cfg.Output, res, func(w io.Writer) error {
				fmt.Fprintf(w, "%s\tselector=%s\tdigest=%s\n", res.Message, res.Selector, res.Digest)
				return nil
			}); err != nil {
				return err
			}
			if target != "" && !ok {
				return fmt.Errorf("selector %s does not match target 0x%s", res.Selector, spec.TargetHex())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "expected selector (8 hex characters)")
	return cmd
}

func parsePair(outerHex, innerHex string) (nonce.Pair, error) {
	o, err := strconv.ParseUint(outerHex, 16, 8)
	if err != nil {
		return nonce.Pair{}, fmt.Errorf("%w: outer nonce %q is not 1-2 hex characters", searchspec.ErrInvalidSpec, outerHex)
	}
	i, err := strconv.ParseUint(innerHex, 16, 24)
	if err != nil {
		return nonce.Pair{}, fmt.Errorf("%w: inner nonce %q is not 1-6 hex characters", searchspec.ErrInvalidSpec, innerHex)
	}
	return nonce.Pair{Outer: nonce.Outer(o), Inner: nonce.Inner(i)}, nil
}

func (a *app) historyCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List solutions recorded by earlier searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if target != "" {
				t, err := searchspec.ParseTarget(target)
				if err != nil {
					return err
				}
				target = hex.EncodeToString(t[:])
			}
			path, err := a.cfg.ResolvedStorePath()
			if err != nil {
				return err
			}
			s, err := store.Open(path)
			if err != nil {
				return err
			}
			defer s.Close()

			recs, err := s.List(target)
			if err != nil {
				return err
			}
			if recs == nil {
				recs = []store.Record{}
			}
			return render(a.stdout, a.cfg.Output, recs, func(w io.Writer) error {
				if len(recs) == 0 {
					fmt.Fprintf(w, "no solutions recorded in %s\n", filepath.Clean(path))
					return nil
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "FOUND\tTARGET\tNONCE\tMESSAGE")
				for _, r := range recs {
					fmt.Fprintf(tw, "%s\t0x%s\t%s\t%s\n", r.FoundAt.Local().Format("2006-01-02 15:04:05"), r.Target, r.Nonce, r.Message)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "only show solutions for this selector")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format := a.cfg.Output
			if format == "text" {
				format = "yaml"
			}
			return render(a.stdout, format, a.cfg, nil)
		},
	}
}
