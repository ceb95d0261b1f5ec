package call

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Descriptions and candidates travel through the hub as JSON strings
// inside the signaling payload, so both ends see the same shape
// regardless of who produced them.

func marshalDescription(sd webrtc.SessionDescription) (string, error) {
	raw, err := json.Marshal(sd)
	if err != nil {
		return "", fmt.Errorf("marshal description: %w", err)
	}
	return string(raw), nil
}

func unmarshalDescription(s string) (webrtc.SessionDescription, error) {
	var sd webrtc.SessionDescription
	if err := json.Unmarshal([]byte(s), &sd); err != nil {
		return sd, fmt.Errorf("unmarshal description: %w", err)
	}
	if sd.SDP == "" {
		return sd, fmt.Errorf("unmarshal description: empty sdp")
	}
	return sd, nil
}

func marshalCandidate(ci webrtc.ICECandidateInit) (string, error) {
	raw, err := json.Marshal(ci)
	if err != nil {
		return "", fmt.Errorf("marshal candidate: %w", err)
	}
	return string(raw), nil
}

func unmarshalCandidate(s string) (webrtc.ICECandidateInit, error) {
	var ci webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(s), &ci); err != nil {
		return ci, fmt.Errorf("unmarshal candidate: %w", err)
	}
	if ci.Candidate == "" {
		return ci, fmt.Errorf("unmarshal candidate: empty candidate")
	}
	return ci, nil
}
