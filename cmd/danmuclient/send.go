package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/qiminjie89/danmu/internal/danmu"
	"github.com/qiminjie89/danmu/pkg/logger"
)

func sendCmd(opts *options) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Connect to a room and post one chat message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Bilibili.Cookie == "" {
				return fmt.Errorf("bilibili.cookie is required to send messages")
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			live := make(chan error, 1)
			client := newClient(cfg, danmu.SinkFunc(func(ev danmu.Event) {
				if ev.Kind != danmu.KindStatus || ev.Status == nil {
					return
				}
				switch {
				case ev.Status.State == danmu.StateLive:
					notify(live, nil)
				case ev.Status.State == danmu.StateFailed && !ev.Status.WillRetry:
					notify(live, ev.Err)
				}
			}))
			defer client.Close()

			if err := client.Connect(ctx, cfg.RoomID); err != nil {
				return err
			}

			select {
			case err := <-live:
				if err != nil {
					return fmt.Errorf("connect room %d: %w", cfg.RoomID, err)
				}
			case <-ctx.Done():
				return fmt.Errorf("room %d not live within %s", cfg.RoomID, timeout)
			}

			text := strings.Join(args, " ")
			if err := client.Send(ctx, text); err != nil {
				return err
			}
			pterm.Success.Printfln("sent to room %d: %s", cfg.RoomID, text)
			return client.Stop(ctx)
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "connect and send timeout")

	return cmd
}

func notify(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}
