package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/duocall/duocall/internal/adapters/rtc"
	"github.com/duocall/duocall/internal/adapters/signal"
	"github.com/duocall/duocall/internal/core"
	"github.com/duocall/duocall/internal/domain"
	"github.com/duocall/duocall/internal/media"
	"github.com/duocall/duocall/internal/session"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "duocall server URL")
	callID := flag.String("call", "", "call id to join as invitee")
	create := flag.Bool("create", false, "create a new call and wait as initiator")
	user := flag.String("user", "", "basic-auth user for call creation")
	pass := flag.String("pass", "", "basic-auth password for call creation")
	stun := flag.String("stun", rtc.DefaultSTUNServer, "STUN server URL")
	wait := flag.Duration("wait", session.DefaultWaitDeadline, "how long to wait for a peer")
	mirror := flag.String("mirror", string(session.MirrorInvitee), "mute mirroring policy: invitee or both")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if *create == (*callID != "") {
		fmt.Fprintln(os.Stderr, "pass either -create or -call <id>")
		os.Exit(2)
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	id := domain.CallID(*callID)
	initiator := *create
	if initiator {
		minted, err := createCall(ctx, *server, *user, *pass)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create call: %v\n", err)
			os.Exit(1)
		}
		id = minted
		fmt.Printf("call created: %s\nshare this id with your peer\n", id)
	}

	// Media acquisition failure aborts the join flow entirely; we never
	// enter the room without a working input.
	mic, err := media.NewMicrophone()
	if err != nil {
		fmt.Fprintf(os.Stderr, "microphone unavailable: %v\n", err)
		os.Exit(1)
	}

	conn, err := signal.Dial(ctx, *server, id)
	if err != nil {
		mic.Stop()
		fmt.Fprintf(os.Stderr, "signaling connect: %v\n", err)
		os.Exit(1)
	}

	factory := func() (core.PeerTransport, error) {
		return rtc.New(rtc.Config{STUNServer: *stun})
	}

	sess := session.New(session.Config{
		CallID:       id,
		Initiator:    initiator,
		WaitDeadline: *wait,
		MuteMirror:   session.MuteMirror(*mirror),
	}, conn, factory, mic)

	sess.OnPhaseChange(func(p session.Phase) {
		fmt.Printf("* call is %s\n", p)
	})
	sess.OnChatMessage(func(m domain.ChatMessage) {
		if m.Sender == domain.ChatSenderPeer {
			fmt.Printf("peer> %s\n", m.Text)
		}
	})

	sess.Start()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		conn.Run(ctx, sess.HandleFrame)
	}()

	go stdinLoop(sess)

	select {
	case <-ctx.Done():
	case <-readerDone:
	}
	sess.HangUp()
	// Give the end-call frame its grace period before the process dies.
	time.Sleep(2 * session.DefaultCloseGrace)
}

// stdinLoop feeds chat lines to the session. /mute toggles the mic,
// /quit hangs up.
func stdinLoop(sess *session.Session) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := sc.Text()
		switch line {
		case "":
		case "/mute":
			muted := sess.ToggleMute()
			fmt.Printf("* mic muted: %v\n", muted)
		case "/quit":
			sess.HangUp()
			return
		default:
			if !sess.ChannelOpen() {
				fmt.Println("* chat not ready yet (message kept locally)")
			}
			sess.SendMessage(line)
		}
	}
	sess.HangUp()
}

func createCall(ctx context.Context, server, user, pass string) (domain.CallID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/create-call", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(user, pass)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	var body struct {
		CallID string `json:"callId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return domain.ParseCallID(body.CallID)
}
