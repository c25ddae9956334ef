package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ystepanoff/mdrelay"
	"github.com/ystepanoff/mdrelay/driver/serialmodem"
	"github.com/ystepanoff/mdrelay/driver/stub"
	"github.com/ystepanoff/mdrelay/driver/wsether"
	"github.com/ystepanoff/mdrelay/internal/util"
	proto "github.com/ystepanoff/mdrelay/protocol"
	"github.com/ystepanoff/mdrelay/relay"
	"github.com/ystepanoff/mdrelay/serialio"
	"github.com/ystepanoff/mdrelay/status"
	"github.com/ystepanoff/mdrelay/transport"
)

const defaultEtherURL = "ws://localhost:7373/ether"

var rootCmd = &cobra.Command{
	Use:   "mdrelay",
	Short: "Relay Marcduino commands over a packet radio link",
	Long: `mdrelay carries Marcduino commands from a controller's serial output to
a Marcduino board's serial input over an encrypted, acknowledged radio link.

The role (` + mdrelay.Role.String() + `) is fixed at build time. Build the
receiver with -tags receiver.`,
	SilenceUsage: true,
}

// ─── run ─────────────────────────────────────────────────────────────────────

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start relaying",
	RunE: func(cmd *cobra.Command, args []string) error {
		driverKind, _ := cmd.Flags().GetString("driver")
		radio, _ := cmd.Flags().GetString("radio")
		radioBaud, _ := cmd.Flags().GetInt("radio-baud")
		port, _ := cmd.Flags().GetString("port")
		baud, _ := cmd.Flags().GetInt("baud")
		keyHex, _ := cmd.Flags().GetString("key")
		debug, _ := cmd.Flags().GetBool("debug")
		ledPath, _ := cmd.Flags().GetString("status-led")
		statsEvery, _ := cmd.Flags().GetDuration("stats")

		if debug {
			util.EnableDebug()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := mdrelay.BuildConfig()
		if keyHex != "" {
			key, err := proto.ParseKey(keyHex)
			if err != nil {
				return err
			}
			cfg.Endpoint.Key = key
		}

		driver, err := openDriver(driverKind, radio, radioBaud)
		if err != nil {
			return err
		}

		src, sink, closer, err := openSerial(cfg.Role, port, baud)
		if err != nil {
			return halt(ctx, err, ledPath)
		}

		node, err := mdrelay.NewNode(cfg, mdrelay.BuildOptions(), driver, src, sink)
		if err != nil {
			return err
		}
		if closer != nil {
			node.CloseWith(closer)
		}
		defer func() {
			if err := node.Close(); err != nil {
				util.LogWarning("[Main] shutdown: %v", err)
			}
		}()

		if err := node.Init(); err != nil {
			return halt(ctx, err, ledPath)
		}

		util.LogInfo("[Main] %s %d -> %d on %.1f MHz via %s", cfg.Role, cfg.Endpoint.Address, cfg.Endpoint.Peer, mdrelay.Frequency, driverKind)
		if statsEvery > 0 {
			relay.StartStatsReporter(ctx, node.Controller().Stats(), statsEvery)
		}

		err = node.Run(ctx)
		if errors.Is(err, io.EOF) {
			util.LogInfo("[Main] input closed")
			return nil
		}
		return err
	},
}

func openDriver(kind, radio string, baud int) (transport.RadioDriver, error) {
	switch kind {
	case "serial":
		if radio == "" {
			return nil, errors.New("--radio must name the modem's serial device")
		}
		return serialmodem.Open(radio, baud), nil
	case "ws":
		if radio == "" {
			radio = defaultEtherURL
		}
		return wsether.New(radio), nil
	case "stub":
		return stub.New(), nil
	}
	return nil, fmt.Errorf("unknown driver %q (want serial, ws or stub)", kind)
}

// openSerial binds the controller-side serial line. "-" uses stdin for a
// sender and stdout for a receiver.
func openSerial(role relay.Role, path string, baud int) (relay.Source, io.Writer, io.Closer, error) {
	if path == "-" {
		if role == relay.RoleSender {
			return serialio.NewStreamSource(os.Stdin, serialio.DefaultPollWait), nil, nil, nil
		}
		return nil, os.Stdout, nil, nil
	}

	p, err := serialio.Open(path, baud, serialio.DefaultPollWait)
	if err != nil {
		return nil, nil, nil, err
	}
	if role == relay.RoleSender {
		return serialio.NewPortSource(p), nil, p, nil
	}
	return nil, p, p, nil
}

// halt signals a fatal startup error until the process is interrupted.
func halt(ctx context.Context, cause error, ledPath string) error {
	ind := status.Multi{status.Log{Cause: cause}}
	if ledPath != "" {
		ind = append(ind, status.NewLED(ledPath))
	}
	util.LogError("[Main] %v; signalling failure until interrupted", cause)
	status.Fail(ctx, ind, status.DefaultBlinkPeriod)
	return cause
}

// ─── ether ───────────────────────────────────────────────────────────────────

var etherCmd = &cobra.Command{
	Use:   "ether",
	Short: "Serve an emulated radio channel for --driver ws",
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			util.EnableDebug()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mux := http.NewServeMux()
		mux.Handle("/ether", wsether.NewHub())
		srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			<-ctx.Done()
			srv.Close()
		}()

		util.LogInfo("[Ether] listening on ws://%s/ether", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

// ─── keygen ──────────────────────────────────────────────────────────────────

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print a random link key for --key",
	RunE: func(cmd *cobra.Command, args []string) error {
		var key proto.Key
		if _, err := rand.Read(key[:]); err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	},
}

func init() {
	runCmd.Flags().String("driver", "serial", "Radio driver: serial, ws or stub")
	runCmd.Flags().String("radio", "", "Modem serial device (serial) or ether URL (ws, default "+defaultEtherURL+")")
	runCmd.Flags().Int("radio-baud", 115200, "Modem serial line speed")
	runCmd.Flags().String("port", "-", "Controller serial device, - for stdin/stdout")
	runCmd.Flags().Int("baud", serialio.DefaultBaud, "Controller serial line speed")
	runCmd.Flags().String("key", "", "Link key as 32 hex digits (default: build-time key)")
	runCmd.Flags().String("status-led", "", "LED class device to blink on fatal errors, e.g. /sys/class/leds/led0")
	runCmd.Flags().Duration("stats", 0, "Log relay counters at this interval (0 = off)")

	etherCmd.Flags().String("listen", "127.0.0.1:7373", "Address to serve the ether on")

	for _, cmd := range []*cobra.Command{runCmd, etherCmd} {
		cmd.Flags().Bool("debug", mdrelay.Debug, "Log per-command diagnostics")
	}

	rootCmd.AddCommand(runCmd, etherCmd, keygenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
