package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/config"
	"github.com/loom-sim/loom/pkg/log"
	"github.com/loom-sim/loom/pkg/metrics"
	"github.com/loom-sim/loom/pkg/model"
	"github.com/loom-sim/loom/pkg/sched"
	"github.com/loom-sim/loom/pkg/trace"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the skeleton pipeline simulation",
	RunE:  runSimulation,
}

func init() {
	runCmd.Flags().String("config", "", "Path to YAML simulation config")
	runCmd.Flags().Int("producers", 2, "Number of producers in the pipeline")
	runCmd.Flags().Uint32("count", 100, "Values each producer sends")
	runCmd.Flags().Uint64("max-ticks", 0, "Tick budget (0 = run to quiescence)")
	runCmd.Flags().Bool("trace", false, "Record every fired event to the trace database")
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return err
		}
		cfg.LogInit()
	}

	numProducers, _ := cmd.Flags().GetInt("producers")
	count, _ := cmd.Flags().GetUint32("count")
	maxTicks, _ := cmd.Flags().GetUint64("max-ticks")
	if maxTicks == 0 {
		maxTicks = cfg.Run.MaxTicks
	}
	traceOn, _ := cmd.Flags().GetBool("trace")
	traceOn = traceOn || cfg.Trace.Enabled

	logger := log.WithComponent("loom")

	// Scheduler and clock tree. The skeleton model runs the consumer ring
	// on a core clock twice the root rate and drains into a sink at half
	// the root rate.
	scheduler := sched.NewScheduler()
	mgr := clock.NewManager(scheduler)
	clocks, err := cfg.BuildClockTree(mgr)
	if err != nil {
		return err
	}
	root := mgr.Root()
	coreClk, ok := clocks["core"]
	if !ok {
		if coreClk, err = mgr.MakeClock("core", root, 1, 2); err != nil {
			return err
		}
	}
	sinkClk, ok := clocks["sink"]
	if !ok {
		if sinkClk, err = mgr.MakeClock("sink", root, 2, 1); err != nil {
			return err
		}
	}
	if _, err := mgr.Normalize(); err != nil {
		return err
	}

	pipeline, err := model.NewPipeline(model.PipelineConfig{
		NumProducers: numProducers,
		MaxToSend:    count,
	}, coreClk, sinkClk)
	if err != nil {
		return err
	}

	var recorder *trace.Recorder
	if traceOn {
		if recorder, err = trace.NewRecorder(cfg.Trace.Path); err != nil {
			return err
		}
		recorder.Attach(scheduler)
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close trace recorder")
			}
		}()
	}

	if cfg.Metrics.Enabled {
		go func() {
			logger.Info().Str("listen", cfg.Metrics.Listen).Msg("Serving metrics")
			if err := http.ListenAndServe(cfg.Metrics.Listen, metrics.Handler()); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	if err := scheduler.Finalize(); err != nil {
		return err
	}
	if err := pipeline.Prime(scheduler); err != nil {
		return err
	}

	budget := sched.RunForever
	if maxTicks > 0 {
		budget = maxTicks
	}
	logger.Info().
		Int("producers", numProducers).
		Uint32("count", count).
		Msg("Simulation starting")
	if err := scheduler.Run(budget, cfg.Run.Exacting); err != nil {
		return err
	}

	var produced uint32
	for _, p := range pipeline.Producers {
		produced += p.NumProduced()
	}
	logger.Info().
		Uint64("final_tick", uint64(scheduler.CurrentTick())).
		Uint32("produced", produced).
		Uint64("consumed", pipeline.Consumer.NumConsumed()).
		Int("absorbed", len(pipeline.Sink.Received())).
		Msg("Simulation finished")

	fmt.Printf("final tick: %d  produced: %d  consumed: %d  absorbed: %d\n",
		scheduler.CurrentTick(), produced, pipeline.Consumer.NumConsumed(), len(pipeline.Sink.Received()))
	return nil
}
