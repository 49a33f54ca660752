// Command viewer verifies access to an event and heartbeats the session
// until it ends, printing why.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/ppv-access/internal/geo"
	"github.com/iliyamo/ppv-access/internal/utils"
	"github.com/iliyamo/ppv-access/internal/viewer"
)

func main() {
	_ = godotenv.Load()

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := utils.InitLogger(false, envOr("LOG_LEVEL", "info"), "console")
	defer utils.SyncLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := viewer.VerifyRequest{EventID: opts.event, Email: opts.email, StripeSessionID: opts.checkout, BypassToken: opts.bypass}
	if src := opts.location(); src != nil {
		if p, err := geo.Locate(ctx, src, geo.DefaultLocateTimeout); err == nil {
			req.Location = &p
		} else {
			log.Warn("location unavailable", zap.Error(err))
		}
	} else {
		log.Info("no location sent")
	}

	c := viewer.New(opts.api, 10*time.Second, log)
	grant, err := c.Verify(ctx, req)
	var denied *viewer.DeniedError
	if errors.As(err, &denied) {
		fmt.Printf("access denied (%s): %s\n", denied.Reason, denied.Message)
		os.Exit(1)
	}
	if err != nil {
		log.Fatal("verify failed", zap.Error(err))
	}

	for _, s := range grant.Streams {
		mark := " "
		if s.ID == grant.DefaultStreamID {
			mark = "*"
		}
		fmt.Printf("%s %-20s playback=%s status=%s\n", mark, s.Name, s.PlaybackID, s.Status)
	}
	fmt.Printf("watching; heartbeat every %s\n", grant.Interval())

	end, err := c.Watch(ctx, grant.SessionToken, grant.Interval())
	if errors.Is(err, viewer.ErrStopped) {
		fmt.Println("stopped")
		return
	}
	if err != nil {
		log.Fatal("watch failed", zap.Error(err))
	}
	fmt.Printf("playback ended (%s): %s\n", end.Reason, end.Message)
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
