package market

import "testing"

func TestSnapshotValidRejectsZeroSide(t *testing.T) {
	s := Snapshot{YesBid: 0, YesAsk: 0, NoBid: 0.4, NoAsk: 0.6}
	if s.Valid() {
		t.Fatal("expected snapshot with a zero-quoted side to be invalid")
	}
}

func TestSnapshotValidRejectsCrossedBook(t *testing.T) {
	s := Snapshot{YesBid: 0.6, YesAsk: 0.5, NoBid: 0.3, NoAsk: 0.4}
	if s.Valid() {
		t.Fatal("expected crossed yes side (bid > ask) to be invalid")
	}
}

func TestSnapshotValidRejectsAskAboveOne(t *testing.T) {
	s := Snapshot{YesBid: 0.5, YesAsk: 1.2, NoBid: 0.3, NoAsk: 0.4}
	if s.Valid() {
		t.Fatal("expected ask above 1.0 to be invalid")
	}
}

func TestSnapshotValidAcceptsWellFormedBook(t *testing.T) {
	s := Snapshot{YesBid: 0.45, YesAsk: 0.5, NoBid: 0.48, NoAsk: 0.53}
	if !s.Valid() {
		t.Fatal("expected well-formed book to be valid")
	}
}

func TestSnapshotDeadBookThinTop3Depth(t *testing.T) {
	s := Snapshot{
		YesBid: 0.01, YesAsk: 0.99,
		NoBid:  0.01, NoAsk: 0.99,
		Top3DepthUSD: 5,
	}
	if !s.DeadBook() {
		t.Fatal("expected thin top-3 depth, near-zero bids, and near-one asks to mark a dead book")
	}
}

func TestSnapshotDeadBookIgnoresDeepRestOfBook(t *testing.T) {
	s := Snapshot{
		YesBid: 0.01, YesAsk: 0.99,
		NoBid:  0.01, NoAsk: 0.99,
		DepthUSD:     500,
		Top3DepthUSD: 5,
	}
	if !s.DeadBook() {
		t.Fatal("expected dead-book detection to use top-3 depth, not whole-book depth")
	}
}

func TestSnapshotNotDeadBookWhenTop3DepthSufficient(t *testing.T) {
	s := Snapshot{
		YesBid: 0.01, YesAsk: 0.99,
		NoBid:  0.01, NoAsk: 0.99,
		Top3DepthUSD: 30,
	}
	if s.DeadBook() {
		t.Fatal("expected sufficient top-3 depth to keep the book alive")
	}
}
