package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dkeye/VoiceMesh/internal/adapters/audio"
	"github.com/dkeye/VoiceMesh/internal/adapters/rtc"
	"github.com/dkeye/VoiceMesh/internal/adapters/wsclient"
	"github.com/dkeye/VoiceMesh/internal/client"
	"github.com/dkeye/VoiceMesh/internal/config"
	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room and talk to everyone in it",
	RunE:  runJoin,
}

func init() {
	f := joinCmd.Flags()
	f.String("server-url", "", "relay websocket URL")
	f.String("room", "", "room to join")
	f.String("name", "", "display name (required)")
	f.StringSlice("stun-urls", nil, "STUN servers")
	f.String("input", "", "opus ogg file to send; silence when empty")
	f.String("record-dir", "", "record every remote participant to <dir>/<name>.ogg")
	f.String("log-level", "", "log level")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadClient(cmd.Flags())
	if err != nil {
		return err
	}
	setupLogging(config.ParseLevel(cfg.LogLevel))

	self, err := domain.NewParticipant(cfg.Name)
	if err != nil {
		return fmt.Errorf("--name: %w", err)
	}
	factory, err := rtc.NewFactory(cfg.STUNURLs)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := client.New(client.Options{
		Room:    domain.RoomID(cfg.Room),
		Self:    self,
		Source:  audioSource(cfg, self),
		Factory: factory,
		Dial: func(ctx context.Context) (client.Transport, error) {
			tr, err := wsclient.Dial(ctx, cfg.ServerURL)
			if err != nil {
				return nil, err
			}
			return tr, nil
		},
		Slots: slotProvider(cfg.RecordDir),
	})
	// View callbacks may run under the mesh lock, so rendering happens on
	// its own goroutine.
	changed := make(chan struct{}, 1)
	c.View().OnChange(func([]domain.Participant) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
				fmt.Fprintln(cmd.OutOrStdout(), renderMembers(self.ID, c.View().Members(), c.Sessions()))
			}
		}
	}()

	log.Info().Str("module", "cli").Str("room", cfg.Room).Str("server", cfg.ServerURL).Msg("joining")
	err = c.Run(ctx)
	if errors.Is(err, client.ErrMediaDenied) {
		return fmt.Errorf("cannot start local audio, not joining: %w", err)
	}
	return err
}

func audioSource(cfg *config.ClientConfig, self domain.Participant) client.AudioSource {
	if cfg.Input != "" {
		return audio.OggFileSource{Path: cfg.Input, StreamID: string(self.ID)}
	}
	return audio.SilenceSource{StreamID: string(self.ID)}
}

func slotProvider(recordDir string) client.SlotProvider {
	return func(p domain.Participant) (core.Slot, error) {
		if recordDir == "" {
			return &audio.CountingSlot{}, nil
		}
		return audio.NewOggSlot(recordDir, string(p.ID))
	}
}
