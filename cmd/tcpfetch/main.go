// tcpfetch fetches a single resource over a TCP/IP stack built entirely
// in userspace: ARP for the gateway's MAC, hand-rolled IPv4 fragmentation
// and TCP, and a minimal HTTP/1.1 GET client, writing the response body
// to disk.
//
// Usage:
//
//	sudo tcpfetch http://example.com/path/to/file
package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/namelessChessfoot/tcpfetch/internal/config"
	"github.com/namelessChessfoot/tcpfetch/pkg/httpclient"
	"github.com/namelessChessfoot/tcpfetch/pkg/ip"
	"github.com/namelessChessfoot/tcpfetch/pkg/sendbuffer"
	"github.com/namelessChessfoot/tcpfetch/pkg/tcp"
)

var (
	cfgFile          string
	ifaceFlag        string
	handshakeTimeout string
	stallTimeout     string
	retransmitAfter  string
	fragmentMTU      int
	maxCwnd          int
	logLevel         string
	verbose          bool
)

var rootCmd = &cobra.Command{
	Use:   "tcpfetch <url>",
	Short: "Fetch an HTTP/1.1 resource over a from-scratch TCP/IP stack",
	Args:  cobra.ExactArgs(1),
	RunE:  run,
}

func init() {
	cobra.OnInitialize(initViper)

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	rootCmd.Flags().StringVar(&ifaceFlag, "interface", "", "network interface to send/receive on (default: autodetect via default route)")
	rootCmd.Flags().StringVar(&handshakeTimeout, "handshake-timeout", "", "total time budget for the TCP handshake (e.g. 9s)")
	rootCmd.Flags().StringVar(&stallTimeout, "stall-timeout", "", "how long to wait for any datagram before giving up (e.g. 180s)")
	rootCmd.Flags().StringVar(&retransmitAfter, "retransmit-threshold", "", "how long an unacked segment sits before retransmission (e.g. 60s)")
	rootCmd.Flags().IntVar(&fragmentMTU, "fragment-mtu", 0, "IPv4 fragment payload size in bytes, multiple of 8")
	rootCmd.Flags().IntVar(&maxCwnd, "max-congestion-window", 0, "ceiling on in-flight unacknowledged segments")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "logrus level: debug, info, warn, error")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log periodic transfer progress (shorthand for --log-level debug)")

	viper.BindPFlag("interface", rootCmd.Flags().Lookup("interface"))
	viper.BindPFlag("handshake-timeout", rootCmd.Flags().Lookup("handshake-timeout"))
	viper.BindPFlag("stall-timeout", rootCmd.Flags().Lookup("stall-timeout"))
	viper.BindPFlag("retransmit-threshold", rootCmd.Flags().Lookup("retransmit-threshold"))
	viper.BindPFlag("fragment-mtu", rootCmd.Flags().Lookup("fragment-mtu"))
	viper.BindPFlag("max-congestion-window", rootCmd.Flags().Lookup("max-congestion-window"))
	viper.BindPFlag("log-level", rootCmd.Flags().Lookup("log-level"))
}

func initViper() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	applyConfig(cfg)

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	entry := logrus.NewEntry(log)

	outPath, mtr, err := httpclient.Fetch(args[0], cfg.Interface, entry)
	if mtr != nil {
		logMetricsSummary(entry, mtr)
	}
	if err != nil {
		return err
	}

	fmt.Println(outPath)
	return nil
}

// logMetricsSummary registers mtr against a fresh registry, gathers it,
// and logs one summary line per instrument. This is the one place the
// run's counters surface: the process exits once the fetch completes, so
// there is no long-lived server for a /metrics endpoint to attach to.
func logMetricsSummary(log *logrus.Entry, mtr *tcp.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(mtr.Collectors()...)

	families, err := reg.Gather()
	if err != nil {
		log.WithError(err).Debug("failed to gather run metrics")
		return
	}

	fields := logrus.Fields{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fields[mf.GetName()] = metricValue(m)
		}
	}
	log.WithFields(fields).Info("run summary")
}

// metricValue extracts the single numeric value carried by a gathered
// metric, whichever of Counter/Gauge it turned out to be.
func metricValue(m *dto.Metric) float64 {
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}
	if g := m.GetGauge(); g != nil {
		return g.GetValue()
	}
	return 0
}

// applyConfig pushes the loaded config into the engine's tunable
// package-level vars. These live where the code that uses them lives
// (pkg/sendbuffer, pkg/ip, pkg/tcp) rather than behind getters, so this
// is the one place that wires configuration to behavior.
func applyConfig(cfg *config.Config) {
	if cfg.HandshakeTimeout > 0 {
		tcp.HandshakeAttemptTimeout = cfg.HandshakeTimeout / 3
	}
	if cfg.StallTimeout > 0 {
		ip.StallTimeout = cfg.StallTimeout
	}
	if cfg.RetransmitThreshold > 0 {
		sendbuffer.RetransmitThreshold = cfg.RetransmitThreshold
	}
	if cfg.FragmentMTU > 0 {
		ip.FragmentMTU = cfg.FragmentMTU
	}
	if cfg.MaxCongestionWindow > 0 {
		tcp.MaxCwnd = cfg.MaxCongestionWindow
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tcpfetch:", err)
		os.Exit(1)
	}
}
