package events

import "testing"

func TestSignHMAC(t *testing.T) {
	got := SignHMAC("secret", "METHOD\n/path\n1700000000\nnonce\nbodyhash")
	if len(got) != 64 { // hex-encoded sha256 length
		t.Fatalf("bad length: %s", got)
	}
}

func TestSignHMACDeterministic(t *testing.T) {
	a := SignHMAC("secret", "POST\n/hook\n1700000000\nabc\ndeadbeef")
	b := SignHMAC("secret", "POST\n/hook\n1700000000\nabc\ndeadbeef")
	if a != b {
		t.Fatalf("signature not deterministic: %s != %s", a, b)
	}
	c := SignHMAC("other", "POST\n/hook\n1700000000\nabc\ndeadbeef")
	if a == c {
		t.Fatal("different secrets must produce different signatures")
	}
}
