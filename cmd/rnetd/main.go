package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/malbeclabs/rnetd/internal/events"
	"github.com/malbeclabs/rnetd/internal/iftable"
	"github.com/malbeclabs/rnetd/internal/metrics"
	"github.com/malbeclabs/rnetd/internal/pktbuf"
	"github.com/malbeclabs/rnetd/internal/ppp"
	"github.com/malbeclabs/rnetd/internal/pump"
	"github.com/malbeclabs/rnetd/internal/rnetconfig"
	"github.com/malbeclabs/rnetd/internal/simdriver"
	"github.com/malbeclabs/rnetd/internal/statusapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// controlFramePoolBufSize matches the pump's control-frame headroom
	// (16) + worst-case LCP/IPCP/IPV6CP option content (64) + tailroom
	// (16) for CRC/flag/byte-stuffing (spec.md §4.4's control frames
	// never approach this).
	controlFramePoolBufSize = 96
	controlFramePoolDepth   = 16
	rxBufDepth              = 64
	rxBufSize               = 2048
	mailboxDepth            = 256
)

var (
	configFile           = flag.String("config", "/etc/rnetd/rnetd.json", "path to the interface/sub-interface/circuit config file")
	localAddr            = flag.String("sim-local-addr", "", "UDP address this process's simulated driver listens on (host:port)")
	peerAddr             = flag.String("sim-peer-addr", "", "UDP address the simulated driver's peer listens on (host:port)")
	simIntfc             = flag.Uint("sim-intfc", 0, "interface index the simulated driver feeds")
	enableVerboseLogging = flag.Bool("v", false, "enables verbose logging")
	metricsEnable        = flag.Bool("metrics-enable", false, "enable the debug/metrics HTTP server")
	metricsAddr          = flag.String("metrics-addr", "localhost:0", "address to listen on for the debug/metrics HTTP server")
	versionFlag          = flag.Bool("version", false, "print build version and exit")

	// set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	flag.Parse()

	opts := &slog.HandlerOptions{}
	if *enableVerboseLogging {
		opts = &slog.HandlerOptions{Level: slog.LevelDebug}
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(logger)

	if *versionFlag {
		fmt.Printf("build: %s\n", commit)
		fmt.Printf("version: %s\n", version)
		fmt.Printf("date: %s\n", date)
		os.Exit(0)
	}

	cfg, err := rnetconfig.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	intfcs, subis, circuits, err := cfg.ToIftable()
	if err != nil {
		slog.Error("failed to build interface table from config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ppp.SetTimeScale(cfg.TimeScale())
	var p *pump.Pump

	table := iftable.Init(intfcs, subis, circuits, func(intfc int) *ppp.RearmableTimer {
		return ppp.NewRearmableTimer(func() {
			p.PostPPPTimeout(uint8(intfc))
		})
	})

	ev := events.NewLists()
	txPool := pktbuf.NewBufPool(controlFramePoolDepth, controlFramePoolBufSize)
	p = pump.New(table, ev, txPool, mailboxDepth)

	go logEvents(ctx, table, ev)
	go reportCircuitsActive(ctx, table)

	if *metricsEnable {
		buildInfo := promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rnetd_build_info",
				Help: "Build information of rnetd",
			},
			[]string{"version", "commit", "date"},
		)
		buildInfo.WithLabelValues(version, commit, date).Set(1)

		go func() {
			listener, err := net.Listen("tcp", *metricsAddr)
			if err != nil {
				slog.Error("failed to start debug/metrics listener", "error", err)
				os.Exit(1)
			}
			slog.Info("debug/metrics server started", "address", listener.Addr().String())
			if err := http.Serve(listener, statusapi.NewMux(table)); err != nil {
				log.Printf("debug/metrics server stopped: %v", err)
			}
		}()
	}

	if *localAddr != "" && *peerAddr != "" {
		rxPool := pktbuf.NewBufPool(rxBufDepth, rxBufSize)
		drv, err := simdriver.NewUDPLoopback(logger, rxPool, *localAddr, *peerAddr)
		if err != nil {
			slog.Error("failed to start simulated driver", "error", err)
			os.Exit(1)
		}
		intfc := uint8(*simIntfc)
		if in, err := table.InterfaceAt(intfc); err == nil {
			in.Static.TxDriver = drv.Send
		}
		if err := drv.Start(intfc, func(pkt pktbuf.Packet) {
			p.Send(pump.WorkItem{Step: pump.StepRxEntry, Pkt: pkt})
		}); err != nil {
			slog.Error("failed to start simulated driver read loop", "error", err)
			os.Exit(1)
		}
		defer drv.Stop()
	}

	slog.Info("rnetd starting", "interfaces", len(table.Interfaces), "subinterfaces", len(table.SubInterfaces))
	go p.Run()

	<-ctx.Done()
	slog.Info("rnetd shutting down")
	p.Close()
}

// logEvents drains the three event lists to the structured logger and the
// PPP-state gauge until ctx is canceled, giving operators visibility into
// link transitions without a dedicated subscriber.
func logEvents(ctx context.Context, table *iftable.Table, ev *events.Lists) {
	initCh := ev.InitComplete.Subscribe(4)
	upCh := ev.IntfcUp.Subscribe(4)
	downCh := ev.IntfcDown.Subscribe(4)
	report := func(e events.Event) {
		slog.Info("event", "kind", e.Kind.String(), "intfc", e.Intfc)
		if in, err := table.InterfaceAt(e.Intfc); err == nil {
			metrics.SetPPPState(e.Intfc, int(in.Link.State))
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-initCh:
			slog.Info("event", "kind", e.Kind.String())
		case e := <-upCh:
			report(e)
		case e := <-downCh:
			report(e)
		}
	}
}

// reportCircuitsActive samples the active-circuit count for the gauge;
// circuit_add/delete may be called from any goroutine (iftable guards
// circuits with its own mutex), so polling is simpler than threading a
// notification through.
func reportCircuitsActive(ctx context.Context, table *iftable.Table) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetCircuitsActive(table.ActiveCircuitCount())
		}
	}
}
