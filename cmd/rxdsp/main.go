package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/knadh/koanf/parsers/hcl"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/kr/pty"
	"github.com/spf13/cobra"

	"github.com/chzchzchz/rxdsp/dsp"
	rxhttp "github.com/chzchzchz/rxdsp/http"
	"github.com/chzchzchz/rxdsp/mqtt"
	"github.com/chzchzchz/rxdsp/pipeline"
	"github.com/chzchzchz/rxdsp/rxdsp"
	"github.com/chzchzchz/rxdsp/store"
	"github.com/chzchzchz/rxdsp/wsjt"
)

var rootCmd = &cobra.Command{
	Use:   "rxdsp",
	Short: "A csdr chain control server.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

var (
	verbose    bool
	configPath string
	sampleHz   int
	outputHz   int
	decodeMode string
	depth      int
)

var conf = koanf.New(".")

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print debug output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.hcl")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the receiver chains and the stream server",
		Run:   func(cmd *cobra.Command, args []string) { serve() },
	})

	decodeCmd := &cobra.Command{
		Use:   "decode wavfile",
		Short: "Run a weak-signal batch decoder on a wave file and print spots",
		Args:  cobra.ExactArgs(1),
		Run:   func(cmd *cobra.Command, args []string) { decode(args[0]) },
	}
	decodeCmd.Flags().StringVarP(&decodeMode, "mode", "m", "ft8", "Secondary mode to decode")
	decodeCmd.Flags().IntVarP(&depth, "depth", "d", 3, "Decoder search depth")
	rootCmd.AddCommand(decodeCmd)

	rateCmd := &cobra.Command{
		Use:   "rate",
		Short: "Print the decimation plan for a rate pair",
		Run:   func(cmd *cobra.Command, args []string) { rate() },
	}
	rateCmd.Flags().IntVarP(&sampleHz, "sample-rate", "s", 250000, "Input sample rate in Hz")
	rateCmd.Flags().IntVarP(&outputHz, "output-rate", "o", 11025, "Output rate in Hz")
	rootCmd.AddCommand(rateCmd)
}

func findConfig() string {
	if configPath != "" {
		return configPath
	}
	paths := []string{"/etc/rxdsp/config.hcl", os.ExpandEnv("$HOME/.config/rxdsp/config.hcl"), "./rxdsp.hcl"}
	for _, path := range paths {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			return path
		}
	}
	return ""
}

func loadConfig() {
	if path := findConfig(); path != "" {
		if err := conf.Load(file.Provider(path), hcl.Parser(true)); err != nil {
			log.Fatal("could not read config file", "path", path, "err", err)
		}
		log.Info("loaded config file", "path", path)
		return
	}
	log.Info("no config file found, using environment")
	conf.Load(env.Provider("", env.Opt{
		Prefix: "RXDSP_",
		TransformFunc: func(k, v string) (string, any) {
			key := strings.ToLower(strings.TrimPrefix(k, "RXDSP_"))
			return strings.Replace(key, "_", ".", 1), v
		},
	}), nil)
}

func demodConfig() rxdsp.DemodulatorConfig {
	cfg := rxdsp.DefaultConfig()
	set := func(key string, f func()) {
		if conf.Exists(key) {
			f()
		}
	}
	set("input.host", func() { cfg.NCHost = conf.String("input.host") })
	set("input.port", func() { cfg.NCPort = conf.Int("input.port") })
	set("receiver.mode", func() { cfg.Mode = dsp.Mode(conf.String("receiver.mode")) })
	set("receiver.secondary_mode", func() { cfg.Secondary = dsp.SecondaryMode(conf.String("receiver.secondary_mode")) })
	set("receiver.sample_rate", func() { cfg.SampleRate = conf.Int("receiver.sample_rate") })
	set("receiver.output_rate", func() { cfg.OutputRate = conf.Int("receiver.output_rate") })
	set("receiver.center_freq", func() { cfg.CenterFreq = conf.Int64("receiver.center_freq") })
	set("receiver.offset_freq", func() { cfg.OffsetFreq = conf.Float64("receiver.offset_freq") })
	set("receiver.squelch", func() { cfg.SquelchLevel = conf.Float64("receiver.squelch") })
	set("receiver.bpf_low_cut", func() { cfg.BpfLowCut = conf.Float64("receiver.bpf_low_cut") })
	set("receiver.bpf_high_cut", func() { cfg.BpfHighCut = conf.Float64("receiver.bpf_high_cut") })
	set("fft.size", func() { cfg.FFTSize = conf.Int("fft.size") })
	set("fft.fps", func() { cfg.FFTFps = conf.Int("fft.fps") })
	set("fft.averages", func() { cfg.FFTAverages = conf.Int("fft.averages") })
	set("fft.secondary_size", func() { cfg.SecondaryFFTSize = conf.Int("fft.secondary_size") })
	set("fft.compression", func() { cfg.FFTCompression = pipeline.Compression(conf.String("fft.compression")) })
	set("audio.compression", func() { cfg.AudioCompression = pipeline.Compression(conf.String("audio.compression")) })
	set("wsjt.decoding_depth", func() { cfg.DecodingDepth = conf.Int("wsjt.decoding_depth") })
	set("wsjt.tempdir", func() { cfg.TempDir = conf.String("wsjt.tempdir") })
	set("digital.unvoiced_quality", func() { cfg.UnvoicedQuality = conf.Int("digital.unvoiced_quality") })
	set("debug.dynamic_bufsize", func() { cfg.DynamicBufsize = conf.Bool("debug.dynamic_bufsize") })
	set("debug.print_bufsizes", func() { cfg.PrintBufsizes = conf.Bool("debug.print_bufsizes") })
	return cfg
}

// logMapper stands in for the broker when no mqtt config exists.
type logMapper struct{}

func (logMapper) UpdateLocation(callsign, locator, mode string, band *store.Band) {
	name := ""
	if band != nil {
		name = band.Name
	}
	log.Info("station located", "callsign", callsign, "locator", locator, "mode", mode, "band", name)
}

func serve() {
	loadConfig()
	cfg := demodConfig()

	var bands *store.Bandplan
	if path := conf.String("bandplan.path"); path != "" {
		var err error
		if bands, err = store.LoadBandplan(path); err != nil {
			log.Fatal("could not load bandplan", "path", path, "err", err)
		}
	}

	var mapper wsjt.MapUpdater = logMapper{}
	var pub *mqtt.Publisher
	if broker := conf.String("mqtt.broker"); broker != "" {
		var err error
		pub, err = mqtt.NewPublisher(broker, conf.String("mqtt.username"), conf.String("mqtt.password"))
		if err != nil {
			log.Fatal("could not connect to mqtt broker", "err", err)
		}
		defer pub.Close()
		mapper = pub
	}

	sink := rxhttp.NewSinkServer()
	c := rxdsp.NewController(cfg, sink, bands, mapper)
	if pub != nil {
		c.OnSpot(pub.PublishSpot)
	}
	if err := c.Start(); err != nil {
		log.Fatal("could not start receiver", "err", err)
	}

	listen := ":8073"
	if conf.Exists("server.listen") {
		listen = conf.String("server.listen")
	}
	go func() {
		log.Info("serving streams", "addr", listen)
		if err := sink.ListenAndServe(listen); err != nil {
			log.Fatal("stream server failed", "err", err)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Info("shutting down")
	c.Stop()
}

func decode(wavfile string) {
	profile, ok := wsjt.ProfileFor(dsp.SecondaryMode(decodeMode))
	if !ok {
		log.Fatal("no batch decoder for mode", "mode", decodeMode)
	}
	argv := profile.DecoderArgs(depth, wavfile)
	cmd := exec.Command(argv[0], argv[1:]...)
	f, err := pty.Start(cmd)
	if err != nil {
		log.Fatal("could not start decoder", "cmd", argv[0], "err", err)
	}
	defer f.Close()

	parser := wsjt.NewParser(nil, nil)
	enc := json.NewEncoder(os.Stdout)
	s := bufio.NewScanner(f)
	for s.Scan() {
		spot, err := parser.Parse(s.Bytes())
		if err != nil {
			log.Debug("undecodable line", "line", s.Text(), "err", err)
			continue
		}
		if spot != nil {
			enc.Encode(spot)
		}
	}
	cmd.Wait()
}

func rate() {
	profile, err := dsp.NewRateProfile(sampleHz, outputHz)
	if err != nil {
		log.Fatal("no decimation plan", "err", err)
	}
	fmt.Printf("decimation: %d\n", profile.Decimation)
	fmt.Printf("if rate: %g Hz\n", profile.IntermediateRate)
	fmt.Printf("fractional ratio: %g\n", profile.Ratio)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
