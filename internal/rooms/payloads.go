package rooms

import "encoding/json"

// Payload builders for the signaling event kinds. They keep the wire
// shapes in one place so the HTTP handlers and tests agree on field names.

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

// PeerJoinedPayload announces a peer entering the room.
func PeerJoinedPayload(peerID string, meta map[string]string) json.RawMessage {
	return mustJSON(struct {
		PeerID string            `json:"peerId"`
		Meta   map[string]string `json:"meta,omitempty"`
	}{peerID, meta})
}

// PeerLeftPayload announces a peer leaving the room.
func PeerLeftPayload(peerID string) json.RawMessage {
	return mustJSON(struct {
		PeerID string `json:"peerId"`
	}{peerID})
}

// OfferPayload carries an SDP offer between two peers.
func OfferPayload(from, to, sdp string) json.RawMessage {
	return mustJSON(struct {
		From string `json:"from"`
		To   string `json:"to"`
		SDP  string `json:"sdp"`
	}{from, to, sdp})
}

// AnswerPayload carries an SDP answer between two peers.
func AnswerPayload(from, to, sdp string) json.RawMessage {
	return mustJSON(struct {
		From string `json:"from"`
		To   string `json:"to"`
		SDP  string `json:"sdp"`
	}{from, to, sdp})
}

// IceCandidatePayload carries an ICE candidate between two peers.
func IceCandidatePayload(from, to, candidate string) json.RawMessage {
	return mustJSON(struct {
		From      string `json:"from"`
		To        string `json:"to"`
		Candidate string `json:"candidate"`
	}{from, to, candidate})
}

// RoomStatePayload snapshots the peers currently present.
func RoomStatePayload(peers []string) json.RawMessage {
	if peers == nil {
		peers = []string{}
	}
	return mustJSON(struct {
		Peers []string `json:"peers"`
	}{peers})
}
