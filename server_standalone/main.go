package main

// small wrapper around the tftp server package, serving a directory or an S3 bucket over UDP.

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/tftp"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "tftp server: %v\n", err)
		os.Exit(2)
	}

	lg := cfg.logger(os.Stderr)

	opts, err := cfg.serverOptions(lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tftp server: %v\n", err)
		os.Exit(1)
	}

	pc, err := net.ListenPacket("udp", cfg.Addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tftp server: %v\n", err)
		os.Exit(1)
	}

	svr, err := tftp.NewServer(pc, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tftp server: %v\n", err)
		os.Exit(1)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		lg.Info("shutting down", "signal", sig.String())
		svr.Close()
	}()

	if err := svr.Serve(); err != nil {
		fmt.Fprintf(os.Stderr, "tftp server completed with error: %v\n", err)
		os.Exit(1)
	}
}
