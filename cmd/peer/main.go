package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Peercall/internal/adapters/media"
	"github.com/dkeye/Peercall/internal/adapters/rtc"
	signaladapter "github.com/dkeye/Peercall/internal/adapters/signal"
	"github.com/dkeye/Peercall/internal/app"
	"github.com/dkeye/Peercall/internal/config"
	"github.com/dkeye/Peercall/internal/domain"
)

func main() {
	id := flag.String("id", "", "local user id")
	name := flag.String("name", "anonymous", "display name")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if *id == "" {
		log.Fatal().Msg("-id is required")
	}
	self := domain.UserID(*id)
	if err := domain.ValidateUserID(self); err != nil {
		log.Fatal().Err(err).Msg("bad user id")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	provider, err := media.NewProvider()
	if err != nil {
		log.Fatal().Err(err).Msg("media provider")
	}

	var populator rtc.MediaEnginePopulator
	if sel := provider.Selector(); sel != nil {
		populator = sel
	}
	engine, err := rtc.NewEngine(rtc.DefaultConfig(cfg.Client.STUNServers), populator)
	if err != nil {
		log.Fatal().Err(err).Msg("negotiation engine")
	}

	transport := signaladapter.NewTransport(
		cfg.Client.ServerURL,
		self,
		signaladapter.FixedBackoff{Delay: cfg.Client.ReconnectDelay},
	)
	if err := transport.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("transport connect")
	}
	defer transport.Close()

	manager := app.NewManager(app.Deps{
		Self:        self,
		DisplayName: *name,
		Transport:   transport,
		Engine:      engine,
		Media:       provider,
	})
	go manager.Run(ctx)

	go func() {
		for snap := range manager.Watch() {
			log.Info().
				Str("state", snap.State.String()).
				Str("remote", string(snap.RemoteID)).
				Str("last_end", string(snap.LastEnd)).
				Bool("remote_media", snap.RemoteMedia).
				Msg("call state")
		}
	}()

	fmt.Println("commands: call <user> [video] | answer | reject | end | mute | video | status | quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "call":
			if len(fields) < 2 {
				fmt.Println("usage: call <user> [video]")
				continue
			}
			kind := domain.CallAudio
			if len(fields) > 2 && fields[2] == "video" {
				kind = domain.CallVideo
			}
			report(manager.StartCall(domain.UserID(fields[1]), fields[1], kind))
		case "answer":
			report(manager.AnswerCall())
		case "reject":
			report(manager.RejectCall())
		case "end":
			report(manager.EndCall())
		case "mute":
			muted, err := manager.ToggleMute()
			if err != nil {
				report(err)
				continue
			}
			fmt.Printf("muted=%v\n", muted)
		case "video":
			off, err := manager.ToggleVideo()
			if err != nil {
				report(err)
				continue
			}
			fmt.Printf("video_off=%v\n", off)
		case "status":
			snap := manager.Snapshot()
			fmt.Printf("state=%s remote=%s kind=%s last_end=%s\n",
				snap.State, snap.RemoteID, snap.Kind, snap.LastEnd)
		case "quit":
			return
		default:
			fmt.Println("unknown command")
		}
	}
}

func report(err error) {
	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
}
