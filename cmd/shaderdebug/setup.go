package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"shaderdebug/internal/config"
	"shaderdebug/internal/debugger"
	"shaderdebug/internal/ir"
	"shaderdebug/internal/observ"
	"shaderdebug/internal/resource"
	"shaderdebug/internal/trace"
)

// sessionSetup is everything a command needs to begin sessions.
type sessionSetup struct {
	cfg    config.Config
	prog   *ir.Program
	acc    *resource.Fixture
	refl   debugger.Reflection
	lane   int
	lanes  int
	opts   debugger.Options
	tracer trace.Tracer
	timer  *observ.Timer
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().Int("lane", 0, "lane to observe")
	cmd.Flags().Int("lanes", 0, "number of lanes in the workgroup")
	cmd.Flags().Int("wave-size", 0, "lanes per wave (0: one wave)")
	cmd.Flags().Int("batch", 0, "states per batch")
	cmd.Flags().String("fixture", "", "resource fixture file")
}

// loadConfig reads --config, or the nearest shaderdebug.toml.
func loadConfig(cmd *cobra.Command) (config.Config, string, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return config.Config{}, "", err
	}
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}
	return config.Discover(".")
}

// prepare loads config, program and fixture. Flags override the config;
// a program argument overrides [session].program.
func prepare(cmd *cobra.Command, args []string) (*sessionSetup, func(), error) {
	cfg, cfgPath, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cfgPath != "" {
		log.Debug().Str("path", cfgPath).Msg("loaded config")
	}

	s := &cfg.Session
	flags := cmd.Flags()
	overrideInt := func(name string, dst *int) {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	overrideInt("lane", &s.Lane)
	overrideInt("lanes", &s.Lanes)
	overrideInt("wave-size", &s.WaveSize)
	overrideInt("batch", &s.Batch)
	fixturePath := cfg.Resolve(s.Fixture)
	if flags.Changed("fixture") {
		fixturePath, _ = flags.GetString("fixture")
	}
	programPath := cfg.Resolve(s.Program)
	if len(args) > 0 {
		programPath = args[0]
	}
	if programPath == "" {
		return nil, nil, fmt.Errorf("no program given\nplease pass one, e.g.:\n  shaderdebug run shader.sdp\nor set [session].program in %s", config.FileName)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	tracer, cleanup, err := setupTracing(cmd, cfg.Trace)
	if err != nil {
		return nil, nil, err
	}
	setup := &sessionSetup{
		cfg:    cfg,
		lane:   s.Lane,
		lanes:  s.Lanes,
		tracer: tracer,
		timer:  observ.NewTimer(),
		refl:   debugger.Reflection{Inputs: cfg.LaneInputs(), Helpers: s.Helpers},
		opts: debugger.Options{
			GroupID:   s.GroupID,
			WaveSize:  s.WaveSize,
			CacheSize: s.CacheSize,
			BatchSize: s.Batch,
			Tracer:    tracer,
		},
	}

	err = setup.timer.Measure("load", func() error {
		prog, err := ir.ReadFile(programPath)
		if err != nil {
			return err
		}
		setup.prog = prog
		if fixturePath == "" {
			setup.acc = resource.NewFixture()
			return nil
		}
		setup.acc, err = resource.LoadFixture(fixturePath)
		return err
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return setup, cleanup, nil
}

// begin starts one session.
func (s *sessionSetup) begin() (*debugger.Session, debugger.ShaderDebugState, error) {
	return debugger.BeginSession(s.prog, s.refl, s.lane, s.lanes, s.opts)
}
