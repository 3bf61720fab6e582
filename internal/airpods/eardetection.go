package airpods

import "encoding/json"

// EarDetection is the worn state of both earbuds.
type EarDetection struct {
	LeftInEar  bool `json:"left_in_ear"`
	RightInEar bool `json:"right_in_ear"`
}

// BothInEar reports whether both earbuds are currently worn. Playback
// resumes only in that state; removing either bud pauses.
func (e EarDetection) BothInEar() bool {
	return e.LeftInEar && e.RightInEar
}

// JSON renders the ear detection payload carried by signals.
func (e EarDetection) JSON() string {
	buf, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(buf)
}
