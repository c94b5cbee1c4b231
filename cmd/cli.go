// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"fmt"

	"vizpipe/internal/config"
	"vizpipe/pkg/build"

	"github.com/spf13/cobra"
)

// Commands understood by main besides the live visualizer.
const (
	CommandList    = "list"
	CommandPlugins = "plugins"
	CommandAnalyze = "analyze"
)

// Invocation is the parsed command line.
type Invocation struct {
	Config *config.Config

	Command string // empty for the live visualizer
	Live    bool   // false after --help or --version

	Interactive bool   // list -i
	File        string // analyze <file>
	Plugin      string // analyze --plugin, empty when not given
	Realtime    bool   // analyze --realtime
	JSON        bool   // analyze --json
}

// flags holds raw flag values; only the ones set on the command line
// override the config file.
type flags struct {
	configPath      string
	device          int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	gate            float64
	plugin          string
	record          bool
	outputDir       string
	metrics         bool
	verbose         bool
}

// ParseArgs parses args (without the program name), loads the config file
// and applies flag overrides.
func ParseArgs(args []string) (*Invocation, error) {
	buildInfo := build.GetBuildFlags()
	inv := &Invocation{}
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", buildInfo.Version, buildInfo.Commit, buildInfo.Time),
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			inv.Config = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			inv.Live = true
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   CommandList,
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			inv.Command = CommandList
		},
	}
	listCmd.Flags().BoolVarP(&inv.Interactive, "interactive", "i", false,
		"Pick a device interactively and print it as a config snippet")
	rootCmd.AddCommand(listCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   CommandPlugins,
		Short: "List built-in visualization plugins",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			inv.Command = CommandPlugins
		},
	})

	analyzeCmd := &cobra.Command{
		Use:   CommandAnalyze + " <file.wav>",
		Short: "Analyze a WAV file and print a beat and tempo summary",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			inv.Command = CommandAnalyze
			inv.File = args[0]
			// Offline runs only drive a plugin when asked to.
			if cmd.Flags().Changed("plugin") {
				inv.Plugin = f.plugin
			}
		},
	}
	analyzeCmd.Flags().BoolVar(&inv.Realtime, "realtime", false,
		"Pace blocks at the file's sample rate instead of as fast as possible")
	analyzeCmd.Flags().BoolVar(&inv.JSON, "json", false, "Print the summary as JSON")
	rootCmd.AddCommand(analyzeCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "",
		"Path to a YAML config file (default: ./config.yaml if present)")

	// Audio Device Configuration
	pf.IntVarP(&f.device, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&f.channels, "channels", "c", config.DefaultInputChannels,
		"Number of input channels (folded to mono for analysis)")
	pf.Float64VarP(&f.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&f.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"Frames per buffer, also the FFT size (power of two)")
	pf.BoolVarP(&f.lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")
	pf.Float64Var(&f.gate, "gate", config.DefaultGateThreshold,
		"Noise gate threshold as a fraction of full scale (0 disables)")

	// Visualization
	pf.StringVarP(&f.plugin, "plugin", "p", config.DefaultActivePlugin,
		fmt.Sprintf("Plugin to activate %v", config.BuiltinPlugins))

	// Recording Configuration
	pf.BoolVarP(&f.record, "record", "r", false,
		"Record the input stream to a WAV file while visualizing")
	pf.StringVarP(&f.outputDir, "output-dir", "o", config.DefaultOutputDir,
		"Directory for recordings")

	// Observability
	pf.BoolVar(&f.metrics, "metrics", false, "Serve Prometheus metrics")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return inv, nil
}

func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("device") {
		cfg.Audio.InputDevice = f.device
	}
	if changed("channels") {
		cfg.Audio.InputChannels = f.channels
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = f.framesPerBuffer
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if changed("gate") {
		cfg.Audio.GateThreshold = f.gate
	}
	if changed("plugin") {
		cfg.Plugins.Active = f.plugin
	}
	if changed("record") {
		cfg.Recording.Enabled = f.record
	}
	if changed("output-dir") {
		cfg.Recording.OutputDir = f.outputDir
	}
	if changed("metrics") {
		cfg.Metrics.Enabled = f.metrics
	}
	if changed("verbose") && f.verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Join(errors.New("invalid command line"), err)
	}
	return cfg, nil
}
