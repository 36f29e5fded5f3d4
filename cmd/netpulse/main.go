package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"codeberg.org/mutker/netpulse/internal/agent"
	"codeberg.org/mutker/netpulse/internal/cloudping"
	"codeberg.org/mutker/netpulse/internal/config"
	"codeberg.org/mutker/netpulse/internal/errors"
	"codeberg.org/mutker/netpulse/internal/logger"
	"codeberg.org/mutker/netpulse/internal/netinfo"
	"codeberg.org/mutker/netpulse/internal/netprobe"
	"codeberg.org/mutker/netpulse/internal/queue"
	"codeberg.org/mutker/netpulse/internal/telemetry"
)

var (
	debugFlag   bool
	verboseFlag bool
	cfg         *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "netpulse",
	Short: "Host network telemetry agent",
	Long: `netpulse periodically measures this host's network quality (latency,
packet loss, throughput, multi-region cloud latency) and ships the samples to
a remote ingestion endpoint, tolerating connectivity loss without losing data.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		if debugFlag {
			cfg.Debug = true
		}
		if verboseFlag {
			cfg.Verbose = true
		}

		logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
		logger.Debug().Msg("Config loaded")

		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the collection loops until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := telemetry.NewService(telemetry.Config{
			Enabled: cfg.History,
			DBPath:  cfg.HistoryDB,
		})
		if err != nil {
			return err
		}
		defer history.Close()

		a, err := agent.New(
			agent.Config{
				DeviceID:      cfg.DeviceID,
				Interval:      time.Duration(cfg.Interval) * time.Second,
				CloudInterval: time.Duration(cfg.CloudInterval) * time.Second,
			},
			buildNetworkCollector(),
			buildCloudCollector(),
			buildQueue(),
			history,
		)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return a.Run(ctx)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Collect one uncached network snapshot and print it as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		metrics := buildNetworkCollector().Collect(ctx, false)

		hostname, _ := os.Hostname()
		report := struct {
			Hostname string          `json:"hostname"`
			Metrics  netprobe.Metrics `json:"network_metrics"`
		}{
			Hostname: hostname,
			Metrics:  metrics,
		}

		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		return nil
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Attempt delivery of all queued samples once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := buildQueue()

		sent, err := q.Flush(context.Background())
		if err != nil {
			return err
		}

		pending, err := q.Len()
		if err != nil {
			return err
		}

		logger.Info().Int("sent", sent).Int("pending", pending).Msg("Queue flushed")

		return nil
	},
}

func buildNetworkCollector() *netprobe.Collector {
	timeout := time.Duration(cfg.HTTPTimeout) * time.Second

	loss := netprobe.NewPacketLossProbe(cfg.PacketLossHosts, cfg.PacketLossPackets, timeout, cfg.PacketLossDebug)
	tput := netprobe.NewThroughputProbe(timeout)
	resolver := netinfo.NewResolver(cfg.PublicIPServices, cfg.STUNServers, timeout)

	return netprobe.NewCollector(loss, tput, resolver)
}

func buildCloudCollector() *cloudping.Collector {
	client := cloudping.NewClient(cfg.CloudAPIURL, cfg.CloudToken, time.Duration(cfg.CloudTimeout)*time.Second)

	return cloudping.NewCollector(client, cloudping.Config{
		Target:     cfg.CloudTarget,
		Packets:    cfg.CloudPackets,
		LocEU:      cfg.CloudLocEU,
		LocUS:      cfg.CloudLocUS,
		LocAsia:    cfg.CloudLocAsia,
		PollBudget: time.Duration(cfg.CloudPollBudget) * time.Second,
	})
}

func buildQueue() *queue.UploadQueue {
	sender := queue.NewHTTPSender(cfg.Endpoint, time.Duration(cfg.HTTPTimeout)*time.Second)

	return queue.New(cfg.QueuePath, sender)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(flushCmd)
}

func main() {
	// Default logger until the config-aware Init in PersistentPreRunE runs,
	// so errors raised before then are still reported.
	logger.Init(false, false, logger.IsService())

	if err := rootCmd.Execute(); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.FatalWithCode(appErr).Msg("netpulse failed")
		}
		logger.Fatal().Err(err).Msg("netpulse failed")
	}
}
