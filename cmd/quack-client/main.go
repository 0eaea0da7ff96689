// Quack client — CLI entry point.
//
// Connects to a signaling relay, joins a room by name and negotiates a
// direct peer-to-peer audio stream with whoever else is in the room.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-room, -urls, -user).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"

	"github.com/quackvoice/quack/internal/config"
	"github.com/quackvoice/quack/internal/peer"
	"github.com/quackvoice/quack/internal/protocol"
	"github.com/quackvoice/quack/internal/signaling"
	"github.com/quackvoice/quack/internal/util"
	"github.com/quackvoice/quack/internal/wsclient"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	roomFlag := flag.String("room", "", "Room name to join")
	urlsFlag := flag.String("urls", "", "Comma-separated relay WebSocket URLs, tried in order")
	userFlag := flag.String("user", "", "User identifier (random when omitted)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Quack — v%s", version))
	pterm.Println()

	roomID := strings.TrimSpace(*roomFlag)
	if roomID == "" {
		roomID = askRoom()
	}

	var urls []string
	if *urlsFlag != "" {
		urls = config.ParseURLList(*urlsFlag)
	} else {
		urls = []string{askURL()}
	}

	normalized := make([]string, 0, len(urls))
	for _, u := range urls {
		wsURL, err := normalizeWSURL(u)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		normalized = append(normalized, wsURL)
	}

	userID := *userFlag
	if userID == "" {
		userID = uuid.NewString()
	}

	run(ctx, roomID, userID, normalized)
}

func run(ctx context.Context, roomID, userID string, urls []string) {
	transport := wsclient.New(config.DefaultClient(urls))
	defer transport.Close()

	coordinator := signaling.New(userID, roomID, transport, func() (peer.Source, error) {
		return peer.NewAudioSource()
	})
	defer coordinator.Close()

	coordinator.OnRemoteTrack(func(track *webrtc.TrackRemote) {
		util.LogInfo("receiving remote audio (%s)", track.Codec().MimeType)
	})

	terminal := make(chan struct{})

	transport.OnOpen(coordinator.HandleConnected)
	transport.OnMessage(coordinator.HandleFrame)
	transport.OnProvisioning(func() {
		pterm.Println("Relay is starting up, this can take a little while...")
	})
	transport.OnClose(func() {
		util.LogWarning("relay connection lost, reconnecting")
	})
	transport.OnTerminal(func() {
		close(terminal)
	})

	transport.Connect(ctx)
	util.LogInfo("waiting for a peer in room %q", roomID)

	select {
	case <-ctx.Done():
		util.LogInfo("leaving room %s", roomID)
	case <-terminal:
		util.LogError("could not reach any relay endpoint")
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// normalizeWSURL validates and normalizes a raw relay URL string.
func normalizeWSURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid relay URL: %s", raw)
	}
	scheme := "wss"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}
	return fmt.Sprintf("%s://%s/ws", scheme, u.Host), nil
}

// askRoom prompts the user for a room name until a non-empty one is entered.
func askRoom() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Room name").
			Show()

		if name := strings.TrimSpace(raw); name != "" {
			pterm.Println()
			return name
		}

		util.LogWarning("room name must not be empty")
		pterm.Println()
	}
}

// askURL prompts the user for a valid relay URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Relay URL (e.g. wss://quack.example.com/ws)").
			Show()

		wsURL, err := normalizeWSURL(raw)
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}
