package airpods_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/kairpods/kairpodsd/internal/airpods"
)

func TestDecodeBatteryNotification(t *testing.T) {
	frame := []byte{
		0x04, 0x00, 0x04, 0x00, 0x04, 0x00, // battery prefix
		0x03,                         // three components
		0x02, 0x01, 82, 0x02, 0x01, // right, 82%, not charging
		0x04, 0x01, 85, 0x01, 0x01, // left, 85%, charging
		0x08, 0x01, 60, 0x02, 0x01, // case, 60%, not charging
	}
	n, err := airpods.DecodeNotification(frame)
	if err != nil {
		t.Fatalf("DecodeNotification: %v", err)
	}
	bn, ok := n.(airpods.BatteryNotification)
	if !ok {
		t.Fatalf("decoded %T, want BatteryNotification", n)
	}
	b := bn.Battery
	if b.Right.Level != 82 || b.Right.Charging {
		t.Fatalf("right = %+v, want level 82 not charging", b.Right)
	}
	if b.Left.Level != 85 || !b.Left.Charging {
		t.Fatalf("left = %+v, want level 85 charging", b.Left)
	}
	if b.Case.Level != 60 || b.Case.Charging {
		t.Fatalf("case = %+v, want level 60 not charging", b.Case)
	}
}

func TestDecodeBatteryUnreportedComponents(t *testing.T) {
	frame := []byte{
		0x04, 0x00, 0x04, 0x00, 0x04, 0x00,
		0x02,
		0x02, 0x01, 0xFF, 0x02, 0x01, // right, level byte out of range
		0x08, 0x01, 50, 0x04, 0x01, // case, disconnected
	}
	n, err := airpods.DecodeNotification(frame)
	if err != nil {
		t.Fatalf("DecodeNotification: %v", err)
	}
	b := n.(airpods.BatteryNotification).Battery
	if b.Right.Known() {
		t.Fatalf("right = %+v, want unknown", b.Right)
	}
	if b.Case.Known() {
		t.Fatalf("case = %+v, want unknown", b.Case)
	}
	if b.Left.Known() {
		t.Fatalf("left = %+v, want unknown (absent from frame)", b.Left)
	}
}

func TestDecodeBatteryTruncated(t *testing.T) {
	frame := []byte{
		0x04, 0x00, 0x04, 0x00, 0x04, 0x00,
		0x02,
		0x02, 0x01, 82, 0x02, 0x01,
		// second component missing
	}
	if _, err := airpods.DecodeNotification(frame); err == nil {
		t.Fatal("expected error for truncated battery frame")
	}
}

func TestDecodeEarDetection(t *testing.T) {
	frame := []byte{0x04, 0x00, 0x04, 0x00, 0x06, 0x00, 0x00, 0x01}
	n, err := airpods.DecodeNotification(frame)
	if err != nil {
		t.Fatalf("DecodeNotification: %v", err)
	}
	ear := n.(airpods.EarDetectionNotification).Ear
	if !ear.LeftInEar || ear.RightInEar {
		t.Fatalf("ear = %+v, want left in, right out", ear)
	}
	if ear.BothInEar() {
		t.Fatal("BothInEar() should be false with one bud out")
	}
}

func TestDecodeNoiseControl(t *testing.T) {
	frame := []byte{0x04, 0x00, 0x04, 0x00, 0x09, 0x00, 0x0D, 0x02}
	n, err := airpods.DecodeNotification(frame)
	if err != nil {
		t.Fatalf("DecodeNotification: %v", err)
	}
	mode := n.(airpods.NoiseControlNotification).Mode
	if mode != airpods.NoiseControlANC {
		t.Fatalf("mode = %v, want anc", mode)
	}
}

func TestDecodeNoiseControlOutOfRange(t *testing.T) {
	frame := []byte{0x04, 0x00, 0x04, 0x00, 0x09, 0x00, 0x0D, 0x09}
	if _, err := airpods.DecodeNotification(frame); err == nil {
		t.Fatal("expected error for mode byte out of range")
	}
}

func TestDecodeUnknownPacket(t *testing.T) {
	for _, frame := range [][]byte{
		{0x01, 0x02, 0x03},
		{0x04, 0x00, 0x04, 0x00, 0x2A, 0x00, 0x01},       // untracked type
		{0x04, 0x00, 0x04, 0x00, 0x09, 0x00, 0x1F, 0x01}, // control, not noise mode
	} {
		_, err := airpods.DecodeNotification(frame)
		if !errors.Is(err, airpods.ErrUnknownPacket) {
			t.Fatalf("frame % X: err = %v, want ErrUnknownPacket", frame, err)
		}
	}
}

func TestSetNoiseModePacketLayout(t *testing.T) {
	got := airpods.SetNoiseModePacket(airpods.NoiseControlTransparency)
	want := []byte{0x04, 0x00, 0x04, 0x00, 0x09, 0x00, 0x0D, 0x03, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("packet = % X, want % X", got, want)
	}

	// the frame we emit is one our own decoder recognizes
	n, err := airpods.DecodeNotification(got)
	if err != nil {
		t.Fatalf("decode own control frame: %v", err)
	}
	if mode := n.(airpods.NoiseControlNotification).Mode; mode != airpods.NoiseControlTransparency {
		t.Fatalf("mode = %v, want transparency", mode)
	}
}

func TestSetFeaturePacketLayout(t *testing.T) {
	on := airpods.SetFeaturePacket(airpods.FeatureConversationalAwareness, true)
	want := []byte{0x04, 0x00, 0x04, 0x00, 0x09, 0x00, 0x28, 0x01, 0x00, 0x00, 0x00}
	if !bytes.Equal(on, want) {
		t.Fatalf("enable packet = % X, want % X", on, want)
	}
	off := airpods.SetFeaturePacket(airpods.FeatureConversationalAwareness, false)
	if off[7] != 0x02 {
		t.Fatalf("disable value byte = %#x, want 0x02", off[7])
	}
}

func TestHandshakeAndSubscribePackets(t *testing.T) {
	hs := airpods.HandshakePacket()
	if len(hs) != 16 || hs[2] != 0x04 || hs[4] != 0x01 {
		t.Fatalf("handshake packet = % X", hs)
	}
	sub := airpods.NotificationsRequestPacket()
	if len(sub) != 10 || sub[4] != 0x0F {
		t.Fatalf("notifications request packet = % X", sub)
	}
	// returned slices are private copies
	hs[0] = 0xAA
	if airpods.HandshakePacket()[0] == 0xAA {
		t.Fatal("HandshakePacket should return a fresh copy")
	}
}
