package session

import (
	"context"
	"encoding/json"
	"errors"

	"backend-sessionmaps/internal/auth"
	"backend-sessionmaps/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterChannelRoutes mounts the live channel endpoint. The protocol is a
// strict handshake: an auth envelope first, then session:join; location and
// annotation traffic received earlier is dropped. Unknown envelope types
// are ignored.
func RegisterChannelRoutes(r fiber.Router, svc *Service, hub *stream.Hub, tokens *auth.Service) {
	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		var (
			userID  string
			client  *stream.Client
			left    bool
			session string
		)

		// sendErr writes directly before the handshake completes; after
		// attach all writes go through the client's Send pump.
		sendErr := func(msg string) {
			payload := stream.Push(stream.TypeError, map[string]string{"message": msg})
			if client != nil {
				select {
				case client.Send <- payload:
				default:
				}
				return
			}
			_ = c.WriteMessage(websocket.TextMessage, payload)
		}

		done := make(chan struct{})
		startPump := func(cl *stream.Client) {
			go func() {
				for msg := range cl.Send {
					if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
						break
					}
				}
				// unblocks the read loop when the hub closes the channel
				_ = c.Close()
				close(done)
			}()
		}

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var env stream.Inbound
			if err := json.Unmarshal(raw, &env); err != nil {
				sendErr("bad envelope")
				continue
			}

			switch env.Type {
			case stream.TypeAuth:
				id, err := tokens.ValidateToken(env.Token)
				if err != nil {
					sendErr("auth failed")
					continue
				}
				userID = id

			case stream.TypeJoin:
				if userID == "" {
					sendErr("auth required")
					continue
				}
				if client != nil {
					sendErr("already joined")
					continue
				}
				if err := svc.AttachMember(context.Background(), env.SessionID, userID); err != nil {
					sendErr(joinErrMessage(err))
					continue
				}
				session = env.SessionID
				client = hub.Attach(session, userID)
				startPump(client)
				hub.BroadcastExcept(session, userID, stream.Push(stream.TypeMemberJoined, map[string]string{
					"userId": userID,
				}))

			case stream.TypeLocation:
				if client == nil {
					// pre-join samples are dropped, not fatal
					continue
				}
				sample := Sample{Lat: env.Lat, Lng: env.Lng, Accuracy: env.Accuracy, Heading: env.Heading}
				if _, err := svc.RecordLocation(session, userID, sample); err != nil {
					continue
				}
				hub.BroadcastExcept(session, userID, stream.Push(stream.TypeLocationUpdate, stream.LocationUpdate{
					UserID:    userID,
					Latitude:  env.Lat,
					Longitude: env.Lng,
					Accuracy:  env.Accuracy,
					Heading:   env.Heading,
				}))

			case stream.TypeLeave:
				if client == nil {
					continue
				}
				// the channel stays up on a failed leave so the member can
				// keep streaming
				if err := svc.Leave(context.Background(), session, userID); err != nil {
					svc.log.Warn().Err(err).Str("session_id", session).Str("user_id", userID).
						Msg("channel leave failed")
					sendErr(leaveErrMessage(err))
					continue
				}
				left = true

			default:
				// unknown envelope types are ignored
			}

			if left {
				break
			}
		}

		if client == nil {
			return
		}
		if !left {
			hub.Detach(client)
			// skip the disconnected push when the member is already gone
			// (left over HTTP, kicked, or the session ended) or when a
			// replacement channel took over after a rejoin
			if svc.live.hasMember(session, userID) && !hub.Has(session, userID) {
				hub.Broadcast(session, stream.Push(stream.TypeMemberDisconnected, map[string]string{
					"userId": userID,
				}))
			}
		}
		<-done
	}))
}

func leaveErrMessage(err error) string {
	switch {
	case errors.Is(err, ErrForbidden):
		return "owner cannot leave, terminate instead"
	case errors.Is(err, ErrNotMember):
		return "not a session member"
	default:
		return "leave failed"
	}
}

func joinErrMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "session not found"
	case errors.Is(err, ErrNotMember):
		return "not a session member"
	case errors.Is(err, ErrSessionEnded):
		return "session ended"
	default:
		return "join failed"
	}
}
