package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"accompany/internal/app/backend"
	"accompany/internal/app/channel"
	"accompany/internal/app/chat"
	"accompany/internal/app/location"
	"accompany/internal/app/room"
	"accompany/internal/app/user"
	"accompany/internal/configs"
	"accompany/internal/pkg/errs"
	"accompany/internal/pkg/logx"
	"accompany/internal/pkg/metrics"
)

const chatHelp = `commands: /loc share position once, /track on|off, /who list companions, /leave, /quit`

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:     "chat",
		Usage:    "Enter a chat room and chat from the terminal",
		Category: "Client",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "room", Usage: "chat room id", Required: true},
			&cli.BoolFlag{Name: "tracking", Usage: "start with location tracking enabled (overrides TRACKING_ENABLED)"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address (overrides METRICS_ADDR)"},
		},
		Action: runChat,
	}
}

func runChat(c *cli.Context) error {
	cfg := configFrom(c)
	if c.IsSet("tracking") {
		cfg.TrackingEnabled = c.Bool("tracking")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := backend.NewClient(cfg.APIBaseURL, cfg.AccessToken)

	me, err := resolveUser(ctx, cfg, api)
	if err != nil {
		logx.Error(err, "Could not resolve the current user")
		return errors.New(errs.UserMessage(err))
	}

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Error(err, "Metrics server failed")
			}
		}()
		defer metricsServer.Close()
	}

	s, err := room.Open(ctx, c.String("room"), me, cfg.TrackingEnabled, room.Deps{
		Backend:    api,
		Positioner: positionerFor(cfg),
		NewChannel: func(roomID int64) room.Channel {
			return channel.NewManager(roomID, channel.Config{
				URL:            cfg.WSURL,
				Token:          cfg.AccessToken,
				ConnectTimeout: cfg.ConnectTimeout,
			})
		},
		LoadTimeout: cfg.LoadTimeout,
		Reconnect: room.ReconnectPolicy{
			MaxAttempts: cfg.ReconnectMaxAttempts,
			MaxInterval: cfg.ReconnectMaxInterval,
		},
	})
	if err != nil {
		logx.Error(err, "Could not enter chat room", "room", c.String("room"))
		return errors.New(errs.UserMessage(err))
	}
	defer s.Close()

	out := c.App.Writer
	fmt.Fprintf(out, "-- room %d (%s) as %s, channel %s\n", s.Entry().RoomID, s.Entry().Status, me.Nickname, s.ChannelState())
	fmt.Fprintln(out, chatHelp)

	go renderTimeline(ctx, out, s.Timeline())

	go func() {
		if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(out, "!! %s\n", errs.UserMessage(err))
		}
	}()

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleLine(ctx, out, s, line); done {
				return nil
			}
		}
	}
}

// handleLine runs one input line. It returns true when the session is over.
func handleLine(ctx context.Context, out io.Writer, s *room.Session, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	notice := func(err error) {
		fmt.Fprintf(out, "!! %s\n", errs.UserMessage(err))
	}

	switch fields := strings.Fields(line); fields[0] {
	case "/quit":
		return true

	case "/leave":
		ack, err := s.Leave(ctx)
		if err != nil {
			notice(err)
			return false
		}
		if ack.AlreadyLeft {
			fmt.Fprintln(out, "-- you had already left this room")
		} else {
			fmt.Fprintln(out, "-- you left the room")
		}
		return true

	case "/loc":
		loc, err := s.ShareLocation(ctx)
		if err != nil {
			notice(err)
			return false
		}
		fmt.Fprintf(out, "-- shared %s\n", location.MapLink(loc.Nickname, location.Position{Lat: loc.Lat, Lng: loc.Lng}))

	case "/track":
		if len(fields) < 2 {
			fmt.Fprintln(out, chatHelp)
			return false
		}
		switch fields[1] {
		case "on":
			pos, err := s.EnableTracking(ctx)
			if err != nil {
				notice(err)
				return false
			}
			fmt.Fprintf(out, "-- tracking on at %.5f,%.5f\n", pos.Lat, pos.Lng)
		case "off":
			s.DisableTracking()
			fmt.Fprintln(out, "-- tracking off")
		default:
			fmt.Fprintln(out, chatHelp)
		}

	case "/who":
		companions := s.Roster().Snapshot()
		if len(companions) == 0 {
			fmt.Fprintln(out, "-- no shared locations yet")
		}
		for _, comp := range companions {
			fmt.Fprintf(out, "-- %s %s\n", comp.Nickname, location.MapLink(comp.Nickname, location.Position{Lat: comp.Lat, Lng: comp.Lng}))
		}

	default:
		if strings.HasPrefix(line, "/") {
			fmt.Fprintln(out, chatHelp)
			return false
		}
		if err := s.SendText(line); err != nil {
			notice(err)
		}
	}
	return false
}

// renderTimeline prints messages as the timeline signals them.
func renderTimeline(ctx context.Context, out io.Writer, tl *chat.Timeline) {
	printed := 0
	flush := func(resorted bool) {
		msgs := tl.Snapshot()
		if resorted {
			fmt.Fprintln(out, "-- (history reordered)")
			printed = 0
		}
		for _, m := range msgs[min(printed, len(msgs)):] {
			fmt.Fprintln(out, formatMessage(m))
		}
		printed = len(msgs)
	}

	flush(false)
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-tl.Changes():
			flush(change.Resorted)
		}
	}
}

func formatMessage(m chat.Message) string {
	stamp := m.CreatedAt.Local().Format("15:04")
	if m.InfoFlag || m.Kind() == chat.KindLeave {
		return fmt.Sprintf("[%s] %s", stamp, m.Content)
	}
	name := m.SenderNickname
	if name == "" {
		name = m.SenderID
	}
	return fmt.Sprintf("[%s] %s: %s", stamp, name, m.Content)
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

// resolveUser takes the identity from configuration when complete, otherwise asks the backend.
func resolveUser(ctx context.Context, cfg *configs.AppConfig, api *backend.Client) (user.User, error) {
	u := user.User{ID: cfg.UserID, Nickname: cfg.UserNickname, ProfileImage: cfg.UserProfileImage}
	if u.IsComplete() {
		return u, nil
	}
	if cfg.AccessToken == "" {
		return user.User{}, errs.NewError(errs.ErrUnauthorized)
	}
	return api.Me(ctx)
}

func positionerFor(cfg *configs.AppConfig) location.Positioner {
	if cfg.HasDevicePosition() {
		return location.StaticPositioner{Fix: location.Position{Lat: *cfg.DeviceLat, Lng: *cfg.DeviceLng}}
	}
	return location.NoPositioner{}
}
