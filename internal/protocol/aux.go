package protocol

import "encoding/json"

// The auxiliary channel multiplexes two payloads over one data channel:
// structured mute notices and plain chat text. Anything that does not
// decode as a mute notice is chat.

const auxKindMute = "mute"

type MuteNotice struct {
	Type  string `json:"type"`
	Muted bool   `json:"muted"`
}

func EncodeMute(muted bool) []byte {
	b, _ := json.Marshal(MuteNotice{Type: auxKindMute, Muted: muted})
	return b
}

// DecodeAux classifies an inbound data-channel frame. ok is true for a
// mute notice; otherwise the raw payload is chat text.
func DecodeAux(data []byte) (MuteNotice, bool) {
	var n MuteNotice
	if err := json.Unmarshal(data, &n); err != nil {
		return MuteNotice{}, false
	}
	if n.Type != auxKindMute {
		return MuteNotice{}, false
	}
	return n, true
}
