package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/roomsync/roomsync/internal/api"
	"github.com/roomsync/roomsync/internal/config"
	"github.com/roomsync/roomsync/internal/engine"
	"github.com/roomsync/roomsync/internal/rooms"
	"github.com/roomsync/roomsync/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "roomsync",
	Short: "Terminal chat client speaking the room sync protocol",
	RunE:  run,
}

var (
	flagSocketURL string
	flagAPIURL    string
	flagCodec     string
	flagTransport string
	flagUsername  string
	flagUserID    int64
	flagToken     string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagSocketURL, "socket-url", "", "chat gateway endpoint (env ROOMSYNC_SOCKET_URL)")
	flags.StringVar(&flagAPIURL, "api-url", "", "REST backend base URL (env ROOMSYNC_API_URL)")
	flags.StringVar(&flagCodec, "codec", "", "wire codec: json or binary (env ROOMSYNC_CODEC)")
	flags.StringVar(&flagTransport, "transport", "", "transport: ws or tcp (env ROOMSYNC_TRANSPORT)")
	flags.StringVar(&flagUsername, "username", "", "username for directory lookups (env ROOMSYNC_USERNAME)")
	flags.Int64Var(&flagUserID, "user-id", 0, "authenticated user id (env ROOMSYNC_USER_ID)")
	flags.StringVar(&flagToken, "token", "", "bearer token from login (env ROOMSYNC_TOKEN)")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute roomsync command")
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(&cfg)

	if cfg.UserID == 0 || cfg.Token == "" {
		return fmt.Errorf("user id and token are required; log in first and pass --user-id/--token")
	}

	codec, err := cfg.BuildCodec()
	if err != nil {
		return err
	}
	dialer, err := cfg.BuildDialer()
	if err != nil {
		return err
	}

	apiClient := api.New(cfg.APIBaseURL, cfg.Token, cfg.UserID)

	done := make(chan struct{})
	eng := engine.New(engine.Config{
		Addr:    cfg.SocketURL,
		UserID:  cfg.UserID,
		Token:   cfg.Token,
		Dialer:  dialer,
		Codec:   codec,
		History: apiClient,
		Logger:  log.Logger,
		OnBanner: func(msg string) {
			fmt.Printf("!! %s\n", msg)
		},
		OnCountdown: func(remaining int) {
			fmt.Printf("!! session terminated by server, back to login in %d...\n", remaining)
		},
		OnRedirect: func() {
			close(done)
		},
	})
	defer eng.Shutdown()

	ctx := cmd.Context()
	if err := eng.Connect(ctx); err != nil {
		return err
	}

	roomList, err := apiClient.Rooms(ctx, cfg.Username)
	if err != nil {
		fmt.Printf("!! %v\n", err)
	}
	printRooms(roomList)

	go printLoop(eng, done)

	fmt.Println("commands: /rooms  /join <id>  /reconnect  /quit; anything else is sent as a message")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-done:
			fmt.Println("session ended, please log in again")
			return nil
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return nil
		case line == "/rooms":
			roomList, err = apiClient.Rooms(ctx, cfg.Username)
			if err != nil {
				fmt.Printf("!! %v\n", err)
				continue
			}
			printRooms(roomList)
		case line == "/reconnect":
			if err := eng.Connect(ctx); err != nil {
				fmt.Printf("!! %v\n", err)
			}
		case strings.HasPrefix(line, "/join "):
			id, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "/join ")), 10, 64)
			if err != nil {
				fmt.Println("!! usage: /join <room id>")
				continue
			}
			room := findRoom(roomList, id)
			if room == nil {
				fmt.Printf("!! unknown room %d, try /rooms\n", id)
				continue
			}
			eng.SelectRoom(ctx, room)
			fmt.Printf("-- joined %s\n", room.Name)
		default:
			if err := eng.SendMessage(ctx, line); err != nil {
				fmt.Printf("!! %v\n", err)
			}
		}
	}
	return scanner.Err()
}

func applyFlags(cfg *config.Config) {
	if flagSocketURL != "" {
		cfg.SocketURL = flagSocketURL
	}
	if flagAPIURL != "" {
		cfg.APIBaseURL = flagAPIURL
	}
	if flagCodec != "" {
		cfg.Codec = flagCodec
	}
	if flagTransport != "" {
		cfg.Transport = flagTransport
	}
	if flagUsername != "" {
		cfg.Username = flagUsername
	}
	if flagUserID != 0 {
		cfg.UserID = flagUserID
	}
	if flagToken != "" {
		cfg.Token = flagToken
	}
}

func printRooms(list []rooms.Room) {
	if len(list) == 0 {
		fmt.Println("-- no rooms; create one via the backend first")
		return
	}
	fmt.Println("-- your rooms:")
	for _, r := range list {
		fmt.Printf("   %d  %s\n", r.ID, r.Name)
	}
}

func findRoom(list []rooms.Room, id int64) *rooms.Room {
	for i := range list {
		if list[i].ID == id {
			return &list[i]
		}
	}
	return nil
}

// printLoop renders inbound messages as they land in the store.
func printLoop(eng *engine.Engine, done chan struct{}) {
	seen := 0
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			msgs := eng.Messages()
			if len(msgs) < seen {
				seen = 0
			}
			for _, m := range msgs[seen:] {
				printMessage(m)
			}
			seen = len(msgs)
		}
	}
}

func printMessage(m store.ChatMessage) {
	who := fmt.Sprintf("user %d", m.UserID)
	if m.FromSelf {
		who = "you"
	}
	suffix := ""
	if m.Status == store.StatusPending {
		suffix = " (sending...)"
	} else if m.Status == store.StatusFailed {
		suffix = " (failed)"
	}
	fmt.Printf("[%s] %s%s\n", who, m.Content, suffix)
}
