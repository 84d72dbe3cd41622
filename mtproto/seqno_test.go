package mtproto

import "testing"

func TestSeqNoGenParity(t *testing.T) {
	var g SeqNoGen

	if got := g.Next(true); got != 1 {
		t.Fatalf("first content seqno = %d, want 1", got)
	}
	if got := g.Next(false); got != 2 {
		t.Fatalf("service seqno after one content message = %d, want 2", got)
	}
	if got := g.Next(true); got != 3 {
		t.Fatalf("second content seqno = %d, want 3", got)
	}
	if got := g.Next(false); got != 4 {
		t.Fatalf("service seqno after two content messages = %d, want 4", got)
	}
}

func TestSeqNoGenReset(t *testing.T) {
	var g SeqNoGen
	g.Next(true)
	g.Next(true)
	g.Reset()
	if got := g.Next(true); got != 1 {
		t.Fatalf("seqno after reset = %d, want 1", got)
	}
}
