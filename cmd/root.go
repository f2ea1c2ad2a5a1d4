package cmd

import (
	"context"
	"fmt"
	"net/http"
	u "net/url"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shin315/fetchopt/internal/engine"
	"github.com/shin315/fetchopt/internal/output"
	"github.com/shin315/fetchopt/internal/utils"
)

var (
	outputPath    string
	urlListFile   string
	maxConcurrent int
	chunkSize     int64
	limitMbps     float64
	expectedHash  string
	expectedSize  int64
	baseTimeout   time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	metricsAddr   string
	removeCorrupt bool
	debug         bool
)

var FetchoptVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "fetchopt [url]",
	Short:   "Fetchopt is an adaptive download engine",
	Version: FetchoptVersion,
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
		if len(args) == 0 && urlListFile == "" {
			output.PrintError("No URL or URL list provided")
			os.Exit(1)
		}
		if urlListFile != "" && len(args) > 0 {
			output.PrintError("Cannot specify url argument and --urllist together, choose one")
			os.Exit(1)
		}
		if userAgent == "randomize" {
			userAgent = utils.GetRandomUserAgent()
		}
		// Proxy URLs may carry auth inline
		parsedProxy, err := u.Parse(proxyURL)
		if err == nil && parsedProxy.User != nil && proxyUsername == "" {
			proxyUsername = parsedProxy.User.Username()
			if password, set := parsedProxy.User.Password(); set {
				proxyPassword = password
			}
			parsedProxy.User = nil
			proxyURL = parsedProxy.String()
		}

		eng := engine.New(engine.Config{
			MaxConcurrent:      maxConcurrent,
			BandwidthLimitMbps: limitMbps,
			BaseTimeout:        baseTimeout,
			RemoveCorrupt:      removeCorrupt,
			HTTP: engine.ClientConfig{
				KATimeout:     kaTimeout,
				ProxyURL:      proxyURL,
				ProxyUsername: proxyUsername,
				ProxyPassword: proxyPassword,
				UserAgent:     userAgent,
				Headers:       utils.ParseHeaderArgs(headers),
			},
		})
		defer eng.Close()
		eng.StartBackground(filepath.Dir(outputPath))

		if metricsAddr != "" {
			startMetricsListener(eng, metricsAddr)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		var reqs []engine.Request
		if len(args) > 0 {
			if _, err := u.Parse(args[0]); err != nil {
				output.PrintError("Invalid URL format")
				os.Exit(1)
			}
			reqs = []engine.Request{{
				URL:          args[0],
				OutputPath:   outputPath,
				ChunkSize:    chunkSize,
				ExpectedHash: expectedHash,
				ExpectedSize: expectedSize,
			}}
		} else {
			entries, err := utils.ReadDownloadList(urlListFile)
			if err != nil {
				output.PrintError("Failed to read URL list file")
				os.Exit(1)
			}
			for _, entry := range entries {
				reqs = append(reqs, engine.Request{
					URL:          entry.URL,
					OutputPath:   entry.OutputPath,
					ChunkSize:    chunkSize,
					ExpectedHash: entry.ExpectedHash,
				})
			}
		}
		for i := range reqs {
			reqs[i].Progress = consoleProgress(reqs[i].URL)
		}

		reports, err := eng.DownloadAll(ctx, reqs)
		fmt.Println()
		for _, report := range reports {
			if report == nil {
				continue
			}
			if report.State == engine.StateCompleted {
				output.PrintSuccess(fmt.Sprintf("%s %s %s %s (%.2f Mbps)",
					output.StyleSymbols["pass"], report.OutputPath,
					output.StyleSymbols["arrow"], utils.FormatBytes(uint64(report.BytesDownloaded)),
					report.AverageSpeedMbps))
			} else {
				output.PrintError(fmt.Sprintf("%s %s", output.StyleSymbols["fail"], report.URL))
			}
		}
		if err != nil {
			output.PrintError("Encountered failed operation(s)")
			os.Exit(1)
		}
	},
}

// consoleProgress renders a single throttled progress line per download.
func consoleProgress(url string) func(downloaded, total int64) {
	return func(downloaded, total int64) {
		fmt.Printf("\r%s %s", output.ProgressBar(downloaded, total, 30), url)
	}
}

func startMetricsListener(eng *engine.Engine, addr string) {
	registry := prometheus.NewRegistry()
	if err := eng.Metrics().Register(registry); err != nil {
		output.PrintWarning("Failed to register metrics collectors")
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			output.PrintWarning(fmt.Sprintf("Metrics listener stopped: %v", err))
		}
	}()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (inferred from the server if not provided)")
	rootCmd.Flags().StringVarP(&urlListFile, "urllist", "l", "", "Path to YAML file containing URLs and output paths")
	rootCmd.Flags().IntVarP(&maxConcurrent, "workers", "w", 5, "Maximum concurrent downloads")
	rootCmd.Flags().Int64VarP(&chunkSize, "chunk-size", "c", 0, "Chunk size in bytes (0 lets the optimizer decide)")
	rootCmd.Flags().Float64VarP(&limitMbps, "limit", "L", 0, "Bandwidth limit in Mbps (0 = unlimited)")
	rootCmd.Flags().StringVar(&expectedHash, "sha256", "", "Expected SHA-256 of the downloaded file")
	rootCmd.Flags().Int64Var(&expectedSize, "size", 0, "Expected size of the downloaded file in bytes")
	rootCmd.Flags().DurationVarP(&baseTimeout, "timeout", "t", 30*time.Second, "Base request timeout, scaled adaptively (eg. 5s, 10m)")
	rootCmd.Flags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for pooled connections")
	rootCmd.Flags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser UA)")
	rootCmd.Flags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.Flags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.Flags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")

	// flags without shorthand
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose prometheus metrics on this address (e.g. :9090)")
	rootCmd.Flags().BoolVar(&removeCorrupt, "remove-corrupt", false, "Delete output that fails integrity validation")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
