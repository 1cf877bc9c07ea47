package console

import (
	"testing"

	"support-console/internal/model"
)

func TestMessageLogKeepsArrivalOrder(t *testing.T) {
	l := NewMessageLog([]model.Message{{ID: "b"}, {ID: "a"}, {ID: "b"}})
	if !l.Append(model.Message{ID: "c"}) {
		t.Fatal("expected c to be new")
	}
	if l.Append(model.Message{ID: "a"}) {
		t.Fatal("expected a to be a duplicate")
	}

	got := l.Messages()
	if len(got) != 3 || got[0].ID != "b" || got[1].ID != "a" || got[2].ID != "c" {
		t.Fatalf("unexpected order %+v", got)
	}
	got[0].ID = "mutated"
	if l.Messages()[0].ID != "b" {
		t.Fatal("Messages must return a copy")
	}
}

func TestMergeKeepsHistoryOrderAndLiveTail(t *testing.T) {
	l := NewMessageLog(nil)
	l.Append(model.Message{ID: "m3"})
	l.Append(model.Message{ID: "m2"})

	added := l.Merge([]model.Message{{ID: "m1"}, {ID: "m2"}, {ID: "m1"}})
	if len(added) != 1 || added[0].ID != "m1" {
		t.Fatalf("expected only m1 added, got %+v", added)
	}
	var ids []string
	for _, m := range l.Messages() {
		ids = append(ids, m.ID)
	}
	if len(ids) != 3 || ids[0] != "m1" || ids[1] != "m2" || ids[2] != "m3" {
		t.Fatalf("unexpected order %v", ids)
	}
	if l.Append(model.Message{ID: "m1"}) {
		t.Fatal("merged message must count as seen")
	}
}
