package kds

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yeremiapane/bar-order-app/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ServeClient pumps subscription events to a websocket connection until the client goes
// away or the subscription closes. It owns both conn and sub and releases them on return.
func ServeClient(conn *websocket.Conn, sub *Subscription, role string) {
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan interface{})
	go func() {
		defer close(frames)
		for {
			select {
			case e, ok := <-sub.C:
				if !ok {
					return
				}
				select {
				case frames <- e:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	Serve(conn, frames, role)
}

// Serve writes every frame as a JSON message until frames is closed or the client goes
// away, keeping the connection alive with pings. It closes conn on return.
func Serve(conn *websocket.Conn, frames <-chan interface{}, role string) {
	defer conn.Close()

	done := make(chan struct{})
	go readPump(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	utils.InfoLogger.Printf("Feed client connected (role=%s)", role)
	for {
		select {
		case frame, ok := <-frames:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteJSON(frame); err != nil {
				utils.ErrorLogger.Printf("Error sending feed frame to %s client: %v", role, err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			utils.InfoLogger.Printf("Feed client disconnected (role=%s)", role)
			return
		}
	}
}

// readPump drains client frames so pongs and close frames are processed.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
