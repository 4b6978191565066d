package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zwennaf/dhaniverse/internal/rooms"
	"github.com/zwennaf/dhaniverse/pkg/log"
)

const keepaliveInterval = 25 * time.Second

// replayCursor resolves the client's position from the Last-Event-ID
// header (set by browsers on SSE reconnect) or the lastEventId query
// parameter. A missing or malformed cursor replays the full buffer.
func replayCursor(r *http.Request) uint64 {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("lastEventId")
	}
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// handleSubscribe admits the caller into the room and streams events
// over SSE: buffered events past the replay cursor first, then live.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "room is required"})
		return
	}

	peerID, err := s.rt.Verifier().Verify(bearerToken(r))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		return
	}

	filter, err := rooms.NewFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad filter: " + err.Error()})
		return
	}

	reg := s.rt.Registry()
	connID := uuid.NewString()
	conn, err := reg.AddConnection(roomID, connID, peerID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer func() {
		_ = reg.RemoveConnection(roomID, connID)
		_, _ = reg.Broadcast(roomID, rooms.KindPeerLeft, peerID, rooms.PeerLeftPayload(peerID))
	}()

	sse, err := newSSEWriter(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	sse.WriteRetry(s.rt.Config().Rooms.RetryHintMs)

	if _, err := reg.Broadcast(roomID, rooms.KindPeerJoined, peerID, rooms.PeerJoinedPayload(peerID, nil)); err != nil {
		s.logger.Warn("join broadcast failed", log.Str("room", roomID), log.Err(err))
	}

	// current room state goes straight to the new subscriber, outside the
	// replayable buffer
	if peers, err := reg.Peers(roomID); err == nil {
		_ = sse.WriteSnapshot(rooms.KindRoomState, rooms.RoomStatePayload(peers))
	}

	// stock and summary rooms count as market activity
	if roomID == rooms.SummaryRoomID || strings.HasPrefix(roomID, rooms.StockRoomPrefix) {
		s.rt.Scheduler().Touch()
	}

	cursor := replayCursor(r)
	ctx := r.Context()
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	s.logger.Debug("subscriber attached",
		log.Str("room", roomID), log.Str("conn", conn.ID), log.Uint64("cursor", cursor))

	for {
		evs, err := reg.EventsSince(roomID, cursor, 0)
		if err != nil {
			return
		}
		for _, ev := range evs {
			cursor = ev.ID
			if !filter.Match(ev) {
				continue
			}
			if err := sse.WriteEvent(ev); err != nil {
				return
			}
		}

		ch := reg.NotifyChan(roomID)
		// re-check for events appended between the scan and the wait
		if evs, err = reg.EventsSince(roomID, cursor, 0); err != nil {
			return
		} else if len(evs) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ch:
		case <-keepalive.C:
			sse.WriteComment("keepalive")
			if err := reg.TouchConnection(roomID, connID); err != nil {
				return
			}
		}
	}
}

type publishReq struct {
	RoomID  string          `json:"roomId"`
	Kind    string          `json:"kind"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// handlePublish appends an event to the room, creating it on first use.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req publishReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request body"})
		return
	}
	if req.Kind == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind is required"})
		return
	}
	ev, err := s.rt.Registry().Broadcast(req.RoomID, rooms.EventKind(req.Kind), req.From, req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]uint64{"id": ev.ID})
}

type leaveReq struct {
	RoomID       string `json:"roomId"`
	ConnectionID string `json:"connectionId"`
	PeerID       string `json:"peerId"`
}

// handleLeave drops a connection and announces the departure.
func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req leaveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request body"})
		return
	}
	// a connection gone already still counts as having left
	if err := s.rt.Registry().RemoveConnection(req.RoomID, req.ConnectionID); err != nil && !errors.Is(err, rooms.ErrConnectionNotFound) {
		writeError(w, err)
		return
	}
	if req.PeerID != "" {
		_, _ = s.rt.Registry().Broadcast(req.RoomID, rooms.KindPeerLeft, req.PeerID, rooms.PeerLeftPayload(req.PeerID))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoomStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		st, err := s.rt.Registry().Stats()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
		return
	}
	st, err := s.rt.Registry().RoomStats(roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	peers, err := s.rt.Registry().Peers(r.URL.Query().Get("room"))
	if err != nil {
		writeError(w, err)
		return
	}
	if peers == nil {
		peers = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"peers": peers})
}
