// Command cangen sends simulated Model 3 frames to a cannelloni endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/squadracorsepolito/acmesig/internal"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:20000", "cannelloni udp endpoint")
	period := flag.Duration("period", 10*time.Millisecond, "period between two packets")
	count := flag.Uint64("count", 0, "number of packets to send, 0 to run until interrupted")
	flag.Parse()

	if err := run(*addr, *period, *count); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(addr string, period time.Duration, count uint64) error {
	l := internal.NewLogger("cmd", "cangen")

	ctx, cancelCtx := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancelCtx()

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	sim, err := newSimulator()
	if err != nil {
		return err
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	t1 := time.Now()
	sent := uint64(0)
	sentBytes := 0

	defer func() {
		elapsed := time.Since(t1).Seconds()
		l.Info("done", "packets", sent, "packets_per_sec", float64(sent)/elapsed, "bytes_per_sec", float64(sentBytes)/elapsed)
	}()

	for count == 0 || sent < count {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		packet, err := sim.next()
		if err != nil {
			return err
		}

		n, err := conn.Write(packet.Encode())
		if err != nil {
			return err
		}

		sent++
		sentBytes += n
	}

	return nil
}
