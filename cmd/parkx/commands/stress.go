package commands

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/llxisdsh/parkx/internal/stress"
)

type stressArgs struct {
	profile    string
	backend    string
	goroutines int
	iterations int
	timeout    time.Duration
	seed       uint64
	workloads  []string
}

// NewStressCmd returns the stress command.
func NewStressCmd() *cobra.Command {
	args := &stressArgs{}
	def := stress.DefaultProfile()

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run randomized stress workloads with a liveness watchdog",
		Args:  cobra.NoArgs,
		RunE: func(cc *cobra.Command, _ []string) error {
			p := def
			if args.profile != "" {
				var err error
				p, err = stress.LoadProfileFile(args.profile)
				if err != nil {
					return err
				}
			}

			// Flags given explicitly override the profile.
			flags := cc.Flags()
			if flags.Changed("backend") {
				p.Backend = args.backend
			}
			if flags.Changed("goroutines") {
				p.Goroutines = args.goroutines
			}
			if flags.Changed("iterations") {
				p.Iterations = args.iterations
			}
			if flags.Changed("timeout") {
				p.Timeout = args.timeout
			}
			if flags.Changed("seed") {
				p.Seed = args.seed
			}
			if flags.Changed("workloads") {
				p.Workloads = args.workloads
			}

			results, err := stress.Run(cc.Context(), p, slog.Default())
			if err != nil {
				return err
			}
			for _, res := range results {
				cc.Printf("%-8s ok  %9d ops  %v\n", res.Workload, res.Ops, res.Elapsed.Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&args.profile, "profile", "", "Load the stress profile from this YAML file")
	cmd.Flags().StringVar(&args.backend, "backend", def.Backend, "Wait/wake backend (default, table, os)")
	cmd.Flags().IntVar(&args.goroutines, "goroutines", def.Goroutines, "Goroutines per workload")
	cmd.Flags().IntVar(&args.iterations, "iterations", def.Iterations, "Iterations per goroutine")
	cmd.Flags().DurationVar(&args.timeout, "timeout", def.Timeout, "Per-workload liveness timeout")
	cmd.Flags().Uint64Var(&args.seed, "seed", def.Seed, "Seed for randomized interleavings")
	cmd.Flags().StringSliceVar(&args.workloads, "workloads", def.Workloads, "Workloads to run")

	err := cmd.MarkFlagFilename("profile", "yaml", "yml")
	if err != nil {
		panic(err)
	}

	return cmd
}
