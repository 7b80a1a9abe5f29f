// Terminal supervisor console for the Nebula Assistant handoff hub.
//
// Connects to the hub's websocket as a supervisor, renders the live feed,
// and turns typed commands into approval decisions, takeover messages, and
// session closes.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/fatih/color"
)

// frame is a loose superset of every event the hub pushes. Unused fields
// simply stay zero for a given type.
type frame struct {
	Type      string     `json:"type"`
	ClientID  string     `json:"clientId"`
	Sender    string     `json:"sender"`
	Content   string     `json:"content"`
	Status    string     `json:"status"`
	Reason    string     `json:"reason"`
	Amount    float64    `json:"amount"`
	Sentiment float64    `json:"sentiment"`
	Message   string     `json:"message"`
	Sessions  []snapshot `json:"sessions"`
	Timestamp time.Time  `json:"timestamp"`
}

type snapshot struct {
	ClientID string `json:"clientId"`
	Status   string `json:"status"`
	Messages []struct {
		Sender  string `json:"sender"`
		Content string `json:"content"`
	} `json:"messages"`
	Pending *struct {
		Amount float64 `json:"amount"`
		Reason string `json:"reason"`
	} `json:"pendingApproval"`
}

type command struct {
	Type           string `json:"type"`
	TargetClientID string `json:"targetClientId"`
	Approved       bool   `json:"approved,omitempty"`
	Content        string `json:"content,omitempty"`
}

type archive struct {
	ID       string `json:"id"`
	ClientID string `json:"clientId"`
	Status   string `json:"status"`
	Messages []struct {
		Sender    string    `json:"sender"`
		Content   string    `json:"content"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"messages"`
	StartedAt time.Time `json:"startTime"`
	EndedAt   time.Time `json:"endTime"`
}

var (
	customerText = color.New(color.FgCyan).SprintFunc()
	botText      = color.New(color.FgGreen).SprintFunc()
	agentText    = color.New(color.FgYellow).SprintFunc()
	systemText   = color.New(color.Faint).SprintFunc()
	alertText    = color.New(color.FgRed, color.Bold).SprintFunc()
	handoffText  = color.New(color.FgMagenta).SprintFunc()
	infoText     = color.New(color.FgBlue).SprintFunc()
)

func main() {
	server := flag.String("server", "http://localhost:8080", "hub base URL")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wsURL := strings.Replace(strings.TrimRight(*server, "/"), "http", "ws", 1) + "/ws/console/supervisor"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect %s: %v\n", wsURL, err)
		os.Exit(1)
	}
	defer conn.Close(websocket.StatusNormalClosure, "console closed")
	// The initial sync carries full message histories.
	conn.SetReadLimit(1 << 20)

	fmt.Printf("Connected to %s\n", *server)
	printHelp()

	go readLoop(ctx, conn)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if done := dispatch(ctx, conn, *server, line); done {
				return
			}
		}
	}
}

func printHelp() {
	fmt.Println(systemText(`commands:
  approve <client>          approve the pending request
  deny <client>             decline the pending request
  say <client> <message>    take over and reply as the agent
  end <client>              close and archive the session
  history [session]         list archived sessions, or show one
  quit`))
}

// readLoop renders every hub frame until the connection drops.
func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				fmt.Println(alertText("connection lost:"), err)
				os.Exit(1)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			fmt.Println(alertText("bad frame:"), err)
			continue
		}
		render(f)
	}
}

func render(f frame) {
	switch f.Type {
	case "message":
		stamp := f.Timestamp.Format("15:04:05")
		line := fmt.Sprintf("%s [%s] %s: %s", stamp, f.ClientID, f.Sender, f.Content)
		switch f.Sender {
		case "customer":
			fmt.Println(customerText(line))
		case "bot":
			fmt.Println(botText(line))
		case "agent":
			fmt.Println(agentText(line))
		default:
			fmt.Println(systemText(line))
		}
	case "approval_request":
		fmt.Println(alertText(fmt.Sprintf("APPROVAL [%s] $%.2f %s  (approve/deny %s)",
			f.ClientID, f.Amount, f.Reason, f.ClientID)))
	case "soft_handoff":
		fmt.Println(handoffText(fmt.Sprintf("SOFT HANDOFF [%s] %s (sentiment %.2f)",
			f.ClientID, f.Reason, f.Sentiment)))
	case "hard_handoff":
		fmt.Println(handoffText(fmt.Sprintf("HARD HANDOFF [%s] %s", f.ClientID, f.Reason)))
	case "status_change":
		fmt.Println(systemText(fmt.Sprintf("[%s] status -> %s", f.ClientID, f.Status)))
	case "session_ended":
		fmt.Println(systemText(fmt.Sprintf("[%s] session ended (%s)", f.ClientID, f.Reason)))
	case "sync_state":
		// Frames delivered while the hub assembled the snapshot may already
		// be on screen; the counts below include them.
		fmt.Println(infoText(fmt.Sprintf("%d active session(s)", len(f.Sessions))))
		for _, s := range f.Sessions {
			line := fmt.Sprintf("  [%s] %s, %d message(s)", s.ClientID, s.Status, len(s.Messages))
			if s.Pending != nil {
				line += fmt.Sprintf(", pending $%.2f %s", s.Pending.Amount, s.Pending.Reason)
			}
			fmt.Println(infoText(line))
		}
	case "error":
		fmt.Println(alertText(fmt.Sprintf("rejected [%s]: %s", f.ClientID, f.Message)))
	default:
		fmt.Println(systemText("unknown frame type " + f.Type))
	}
}

// dispatch runs one typed command. Returns true when the console should
// exit.
func dispatch(ctx context.Context, conn *websocket.Conn, server, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	// Chat habits die hard; a leading slash works too.
	switch strings.TrimPrefix(fields[0], "/") {
	case "quit", "exit":
		return true
	case "help":
		printHelp()
	case "approve", "deny":
		if len(fields) != 2 {
			fmt.Println(alertText("usage: " + fields[0] + " <client>"))
			return false
		}
		send(ctx, conn, command{
			Type:           "approval_response",
			TargetClientID: fields[1],
			Approved:       fields[0] == "approve",
		})
	case "say":
		if len(fields) < 3 {
			fmt.Println(alertText("usage: say <client> <message>"))
			return false
		}
		send(ctx, conn, command{
			Type:           "takeover_message",
			TargetClientID: fields[1],
			Content:        strings.Join(fields[2:], " "),
		})
	case "end":
		if len(fields) != 2 {
			fmt.Println(alertText("usage: end <client>"))
			return false
		}
		send(ctx, conn, command{Type: "end_session", TargetClientID: fields[1]})
	case "history":
		if len(fields) > 1 {
			showArchive(ctx, server, fields[1])
		} else {
			listArchives(ctx, server)
		}
	default:
		fmt.Println(alertText("unknown command " + fields[0]))
	}
	return false
}

func send(ctx context.Context, conn *websocket.Conn, cmd command) {
	data, err := json.Marshal(cmd)
	if err != nil {
		fmt.Println(alertText("encode command:"), err)
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		fmt.Println(alertText("send command:"), err)
	}
}

func listArchives(ctx context.Context, server string) {
	var archives []archive
	if !fetchJSON(ctx, server+"/api/history", &archives) {
		return
	}
	if len(archives) == 0 {
		fmt.Println(systemText("no archived sessions"))
		return
	}
	for _, a := range archives {
		fmt.Println(infoText(fmt.Sprintf("  %s  %s  %s .. %s",
			a.ClientID, a.Status,
			a.StartedAt.Format("2006-01-02 15:04"), a.EndedAt.Format("15:04"))))
	}
}

func showArchive(ctx context.Context, server, id string) {
	var a archive
	if !fetchJSON(ctx, server+"/api/history/"+id, &a) {
		return
	}
	fmt.Println(infoText(fmt.Sprintf("[%s] %s, %d message(s)", a.ClientID, a.Status, len(a.Messages))))
	for _, m := range a.Messages {
		fmt.Printf("  %s %s: %s\n", m.Timestamp.Format("15:04:05"), m.Sender, m.Content)
	}
}

func fetchJSON(ctx context.Context, url string, v interface{}) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		fmt.Println(alertText("request:"), err)
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Println(alertText("fetch:"), err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Println(alertText(fmt.Sprintf("%s: HTTP %d", url, resp.StatusCode)))
		return false
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		fmt.Println(alertText("decode:"), err)
		return false
	}
	return true
}
