package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/StormyCloudInc/selector-vanitygen/internal/compute"
	"github.com/StormyCloudInc/selector-vanitygen/internal/config"
	"github.com/StormyCloudInc/selector-vanitygen/internal/generator"
	"github.com/StormyCloudInc/selector-vanitygen/internal/nonce"
	"github.com/StormyCloudInc/selector-vanitygen/internal/searchspec"
	"github.com/StormyCloudInc/selector-vanitygen/internal/store"
	"github.com/StormyCloudInc/selector-vanitygen/internal/ui"
	"github.com/StormyCloudInc/selector-vanitygen/internal/validator"
)

// solutionView is how a solution is printed.
type solutionView struct {
	Outer    string `json:"outer" yaml:"outer"`
	Inner    string `json:"inner" yaml:"inner"`
	Nonce    string `json:"nonce" yaml:"nonce"`
	Message  string `json:"message" yaml:"message"`
	Selector string `json:"selector" yaml:"selector"`
	Digest   string `json:"digest" yaml:"digest"`
}

func newSolutionView(s validator.Solution) solutionView {
	oh, ih := s.Pair.Outer.Hex(), s.Pair.Inner.Hex()
	return solutionView{
		Outer:    string(oh[:]),
		Inner:    string(ih[:]),
		Nonce:    s.NonceHex(),
		Message:  string(s.Message),
		Selector: "0x" + hex.EncodeToString(s.Digest[:4]),
		Digest:   "0x" + hex.EncodeToString(s.Digest[:]),
	}
}

type searchResult struct {
	Target     string         `json:"target" yaml:"target"`
	Template   string         `json:"template" yaml:"template"`
	Status     string         `json:"status" yaml:"status"`
	Solutions  []solutionView `json:"solutions" yaml:"solutions"`
	Iterations int            `json:"iterations" yaml:"iterations"`
	Checked    uint64         `json:"checked" yaml:"checked"`
	Rejected   int            `json:"rejected" yaml:"rejected"`
	Overflows  int            `json:"overflows" yaml:"overflows"`
	Elapsed    string         `json:"elapsed" yaml:"elapsed"`
}

func (a *app) searchCmd() *cobra.Command {
	var (
		outerFirst, outerLast uint8
		lanes                 uint32
	)
	cmd := &cobra.Command{
		Use:   "search <target> <template> <device>",
		Short: "Search the nonce space for a message with the target selector",
		Example: `  selectorgen search 00000012 'mint00000000(address)' 0
  selectorgen search 0xdeadbeef 'withdraw_00000000(uint256)' 1 --backend opencl --stop-on-first`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := searchspec.Parse(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			if outerLast < outerFirst {
				return fmt.Errorf("%w: --outer-last %d is below --outer-first %d", searchspec.ErrInvalidSpec, outerLast, outerFirst)
			}
			return a.runSearch(cmd.Context(), spec, generator.OuterRange{
				First: nonce.Outer(outerFirst),
				Last:  nonce.Outer(outerLast),
			}, lanes)
		},
	}

	f := cmd.Flags()
	f.Bool("stop-on-first", false, "stop after the first outer nonce that yields a solution")
	f.Float64("throttle", 0, "pause between outer nonces, as a fraction of the previous one's duration")
	f.Int("slot-capacity", compute.DefaultSlotCapacity, "matches stored per dispatch")
	f.String("kernel", "", "OpenCL kernel source file (default: built in)")
	f.Bool("progress", true, "draw a progress bar on stderr")
	f.Bool("no-store", false, "do not record solutions in the ledger")
	f.Uint8Var(&outerFirst, "outer-first", 0, "first outer nonce to search")
	f.Uint8Var(&outerLast, "outer-last", nonce.OuterSpace-1, "last outer nonce to search")
	f.Uint32Var(&lanes, "lanes", nonce.InnerSpace, "inner nonces per outer nonce")
	f.MarkHidden("lanes")

	a.v.BindPFlag(config.KeyStopOnFirst, f.Lookup("stop-on-first"))
	a.v.BindPFlag(config.KeyThrottle, f.Lookup("throttle"))
	a.v.BindPFlag(config.KeySlotCapacity, f.Lookup("slot-capacity"))
	a.v.BindPFlag(config.KeyKernelPath, f.Lookup("kernel"))
	a.v.BindPFlag(config.KeyProgress, f.Lookup("progress"))
	a.v.BindPFlag(config.KeyNoStore, f.Lookup("no-store"))
	return cmd
}

func (a *app) runSearch(ctx context.Context, spec *searchspec.Spec, outers generator.OuterRange, lanes uint32) error {
	cfg := a.cfg
	backend, err := compute.New(cfg.Backend, compute.Options{Workers: cfg.Workers, SlotCapacity: cfg.SlotCapacity})
	if err != nil {
		return err
	}
	src, err := cfg.KernelSource()
	if err != nil {
		return err
	}

	var ledger *store.Store
	if !cfg.NoStore {
		path, err := cfg.ResolvedStorePath()
		if err != nil {
			return err
		}
		if ledger, err = store.Open(path); err != nil {
			return err
		}
		defer ledger.Close()
	}

	text := cfg.Output == "text"
	var progress *ui.Progress
	if cfg.Progress && text {
		progress = ui.NewProgress(a.stderr, outers.Len())
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := a.log.WithFields(logrus.Fields{"target": spec.TargetHex(), "device": spec.DeviceIndex})
	g := generator.New(spec, backend, generator.Options{
		Outers:       &outers,
		StopOnFirst:  cfg.StopOnFirst,
		Throttle:     cfg.Throttle,
		SlotCapacity: cfg.SlotCapacity,
		Lanes:        lanes,
		KernelSource: src,
		Logger:       log,
		OnSolution: func(s validator.Solution) {
			if text {
				printSolution(a.stdout, s)
			}
			if ledger != nil {
				if err := ledger.Add(store.NewRecord(spec, s, backend.Name())); err != nil {
					log.WithError(err).Warn("could not record solution")
				}
			}
		},
		OnIteration: func(s generator.Stats) {
			if progress != nil {
				progress.Update(s)
			}
		},
	})

	sum, err := g.Run(ctx)
	if progress != nil {
		progress.Finish()
	}
	if err != nil {
		return err
	}
	return a.printSummary(spec, sum)
}

func printSolution(w io.Writer, s validator.Solution) {
	v := newSolutionView(s)
	fmt.Fprintf(w, "%s\tnonce=%s/%s\tselector=%s\n", v.Message, v.Outer, v.Inner, v.Selector)
}

func (a *app) printSummary(spec *searchspec.Spec, sum *generator.Summary) error {
	res := searchResult{
		Target:     "0x" + spec.TargetHex(),
		Template:   spec.Template(),
		Solutions:  []solutionView{},
		Iterations: sum.Iterations,
		Checked:    sum.Checked,
		Rejected:   len(sum.Rejected),
		Overflows:  sum.Overflows,
		Elapsed:    ui.FormatDuration(sum.Elapsed),
	}
	for _, s := range sum.Solutions {
		res.Solutions = append(res.Solutions, newSolutionView(s))
	}
	switch {
	case sum.Found():
		res.Status = "found"
	case sum.Stopped:
		res.Status = "stopped"
	default:
		res.Status = "exhausted"
	}

	return render(a.stdout, a.cfg.Output, res, func(w io.Writer) error {
		// Solutions were already printed as they were found.
		switch res.Status {
		case "exhausted":
			fmt.Fprintf(w, "search space exhausted after %s candidates: no message hashes to %s\n", ui.FormatCount(sum.Checked), res.Target)
		case "stopped":
			fmt.Fprintf(w, "search stopped after %d outer nonces (%s candidates), no solution yet\n", sum.Iterations, ui.FormatCount(sum.Checked))
		default:
			fmt.Fprintf(w, "%d solution(s) in %s, %s candidates checked\n", len(res.Solutions), res.Elapsed, ui.FormatCount(sum.Checked))
		}
		return nil
	})
}
