package feed

import (
	"context"
	"testing"
)

func TestSyntheticFeedSnapshotIsDeterministicForSameSeed(t *testing.T) {
	a := NewSyntheticFeed(7)
	b := NewSyntheticFeed(7)

	ctx := context.Background()
	ocA, err := a.Snapshot(ctx, "SPY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ocB, err := b.Snapshot(ctx, "SPY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ocA.Spot != ocB.Spot {
		t.Fatalf("expected identical spot for identical seed, got %f vs %f", ocA.Spot, ocB.Spot)
	}
	if len(ocA.Options) != len(ocB.Options) {
		t.Fatalf("expected identical option count, got %d vs %d", len(ocA.Options), len(ocB.Options))
	}
}

func TestSyntheticFeedSnapshotHasCallAndPutPerStrikeSortedAscending(t *testing.T) {
	f := NewSyntheticFeed(42)
	oc, err := f.Snapshot(context.Background(), "QQQ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(oc.Options) == 0 {
		t.Fatalf("expected a non-empty chain")
	}

	counts := map[float64]int{}
	for i, o := range oc.Options {
		counts[o.Strike]++
		if i > 0 && oc.Options[i-1].Strike > o.Strike {
			t.Fatalf("expected strikes sorted ascending, found %f before %f", oc.Options[i-1].Strike, o.Strike)
		}
		if o.Bid > o.Ask {
			t.Fatalf("expected bid <= ask, got bid=%f ask=%f", o.Bid, o.Ask)
		}
	}
	for strike, c := range counts {
		if c != 2 {
			t.Fatalf("expected exactly one call and one put at strike %f, got %d rows", strike, c)
		}
	}
}

func TestSyntheticFeedSecondaryDefaultsToNil(t *testing.T) {
	f := NewSyntheticFeed(1)
	if f.Secondary() != nil {
		t.Fatalf("expected nil secondary provider")
	}
}
