package main

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"leadrelay/internal/service"
	"leadrelay/internal/tracing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

const eventWriteTimeout = 5 * time.Second

// handleEvents streams delivery events to an operator over a websocket until
// either side goes away. Client messages are ignored.
func (s *Server) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := s.logger.WithField(service.LogFieldRequestID, tracing.GetRequestID(r.Context()))

		// the feed outlives the server write timeout
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns(s.cfg.Server.AllowedOrigins),
		})
		if err != nil {
			log.WithError(err).Warn("Failed to accept event feed connection")
			return
		}
		defer conn.CloseNow()

		feed, unsubscribe := s.hub.Subscribe()
		defer unsubscribe()

		log.WithField("subscribers", s.hub.Subscribers()).Info("Operator subscribed to delivery events")

		ctx := conn.CloseRead(r.Context())
		for {
			select {
			case <-ctx.Done():
				log.Debug("Event feed closed")
				return
			case evt, ok := <-feed:
				if !ok {
					return
				}
				writeCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
				err := wsjson.Write(writeCtx, conn, evt)
				cancel()
				if err != nil {
					log.WithError(err).WithFields(logrus.Fields{"event": evt.Type}).Debug("Failed to write event, closing feed")
					return
				}
			}
		}
	}
}

// originPatterns turns configured origins into the host patterns the
// websocket handshake checks
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
