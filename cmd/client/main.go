// Dev chat client: connects to the hub with a locally signed token,
// joins a room and bridges stdin to it. Useful for poking the hub
// server by hand.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vanhungne/tutoring-live/internal/auth"
	"github.com/vanhungne/tutoring-live/internal/config"
	"github.com/vanhungne/tutoring-live/internal/domain"
	"github.com/vanhungne/tutoring-live/internal/media"
	"github.com/vanhungne/tutoring-live/internal/rtc"
	"github.com/vanhungne/tutoring-live/internal/session"
)

func main() {
	username := flag.String("username", "guest", "username to sign into the dev token")
	room := flag.String("room", "lobby", "room to join")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if cfg.Secret == "" {
		log.Fatal().Msg("secret is required to sign the dev token")
	}

	token, err := auth.SignToken(*username, cfg.Secret)
	if err != nil {
		log.Fatal().Err(err).Msg("sign token")
	}

	api, err := media.NewAPI()
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc api")
	}
	peers := rtc.NewFactoryWithAPI(api, rtc.ConfigFromSTUN(cfg.StunServers))

	sess := session.New(cfg, auth.StaticCredentials{AccessToken: token}, peers, media.NewSource())
	defer sess.Stop()

	sess.Hub.OnMessage(func(msg domain.ChatMessage) {
		fmt.Printf("[%s] %s: %s\n", msg.RoomID, msg.Username, msg.Content)
	})
	sess.Hub.OnTyping(func(user string, isTyping bool) {
		if isTyping {
			fmt.Printf("... %s is typing\n", user)
		}
	})

	if err := sess.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	roomID := domain.RoomID(*room)
	if err := sess.Hub.JoinRoom(roomID); err != nil {
		log.Fatal().Err(err).Msg("join room")
	}
	fmt.Printf("connected to %s as %s, type to chat\n", *room, *username)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				continue
			}
			if err := sess.Hub.SendMessage(line, roomID); err != nil {
				log.Error().Err(err).Msg("send")
			}
		}
	}
}
