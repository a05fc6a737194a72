package main

import (
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/herijooj/redetrab1/peer"
	"github.com/herijooj/redetrab1/ring"
)

func main() {
	configPath := flag.String("config", "configs/p0.yml", "Peer configuration file")
	debug := flag.Bool("debug", false, "Verbose development logging")
	manual := flag.Bool("manual", false, "Prompt for every pass and play instead of auto-playing")
	startupDelay := flag.Duration("startup-delay", time.Second, "Coordinator wait before GAME_START, so the ring can bind")
	flag.Parse()

	logger, err := newLogger(*debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := peer.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("loading config", zap.String("path", *configPath), zap.Error(err))
	}
	if *manual {
		cfg.Auto = false
	}

	conn, err := net.ListenPacket("udp", cfg.Listen)
	if err != nil {
		// Without the socket there is no ring.
		logger.Fatal("binding socket", zap.String("listen", cfg.Listen), zap.Error(err))
	}
	next, err := net.ResolveUDPAddr("udp", cfg.Next)
	if err != nil {
		logger.Fatal("resolving successor", zap.String("next", cfg.Next), zap.Error(err))
	}

	var strategy peer.Strategy = peer.AutoStrategy{}
	if !cfg.Auto {
		strategy = peer.NewTerminalStrategy(os.Stdin, os.Stdout)
	}

	p := peer.New(cfg, strategy, logger)
	transport := ring.NewTransport(uint8(cfg.ID), conn, next, p.Handle, logger)
	transport.SetSnoop(p.Snoop)
	p.SetOutput(transport, transport.Stop)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		logger.Info("interrupted")
		transport.Close()
	}()

	logger.Info("listening",
		zap.Int("peer", cfg.ID),
		zap.String("addr", transport.LocalAddr().String()),
		zap.String("next", cfg.Next))

	if cfg.ID == 0 {
		// Give the other peers a moment to bind before the first frame.
		time.Sleep(*startupDelay)
		p.Start()
	}
	transport.Run()

	logger.Info("stopped")
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return cfg.Build()
}
