package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-assistant/internal/httpc"
	"github.com/teslashibe/go-assistant/pkg/hub"
)

const remoteTimeout = 10 * time.Second

// call sends a request to the daemon and pretty prints the JSON reply.
func (g *globals) call(ctx context.Context, method, path string, body any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://"+g.addr+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpc.NewClient(remoteTimeout).Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", g.addr, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if json.Indent(&out, data, "", "  ") == nil {
		data = out.Bytes()
	}
	fmt.Println(string(data))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

func statusCmd(g *globals) *cobra.Command {
	var sessions bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/status"
			if sessions {
				path = "/api/sessions"
			}
			return g.call(cmd.Context(), http.MethodGet, path, nil)
		},
	}
	cmd.Flags().BoolVarP(&sessions, "sessions", "s", false, "List recent sessions instead")
	return cmd
}

func triggerCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Start a session on the daemon, as if the button was pressed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd.Context(), http.MethodPost, "/api/trigger", nil)
		},
	}
}

func eventsCmd(g *globals) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream daemon events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			u := url.URL{Scheme: "ws", Host: g.addr, Path: "/ws/events"}
			conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), u.String(), nil)
			if err != nil {
				return fmt.Errorf("dial %s: %w", u.String(), err)
			}
			defer conn.Close()

			go func() {
				<-cmd.Context().Done()
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				conn.Close()
			}()

			for {
				var ev hub.Event
				if err := conn.ReadJSON(&ev); err != nil {
					if cmd.Context().Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						return nil
					}
					return err
				}
				if filter != "" && !strings.HasPrefix(ev.Type, filter) {
					continue
				}
				data, _ := json.Marshal(ev.Data)
				fmt.Printf("%s  %-17s %s\n", ev.Time.Format("15:04:05"), ev.Type, data)
			}
		},
	}
	cmd.Flags().StringVarP(&filter, "type", "t", "", "Only show events whose type starts with this prefix")
	return cmd
}
