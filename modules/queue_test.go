package modules

import "testing"

func TestPendingQueueIsFIFO(t *testing.T) {
	var q pendingQueue
	q.push("111", Content{Text: "um"}, nil)
	q.push("222", Content{Text: "dois"}, nil)
	q.push("333", Content{Text: "três"}, nil)

	if q.size() != 3 {
		t.Fatalf("size = %d, want 3", q.size())
	}
	items := q.takeAll()
	if len(items) != 3 {
		t.Fatalf("takeAll returned %d items", len(items))
	}
	for i, want := range []string{"um", "dois", "três"} {
		if items[i].Content.Text != want {
			t.Errorf("item %d = %q, want %q", i, items[i].Content.Text, want)
		}
	}
	if q.size() != 0 {
		t.Fatalf("takeAll must empty the queue, size = %d", q.size())
	}
	if more := q.takeAll(); len(more) != 0 {
		t.Fatalf("second takeAll must be empty, got %d", len(more))
	}
}

func TestPendingQueueAssignsIDs(t *testing.T) {
	var q pendingQueue
	a := q.push("111", Content{Text: "a"}, nil)
	b := q.push("111", Content{Text: "b"}, nil)
	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		t.Fatalf("queued requests need distinct ids: %q / %q", a.ID, b.ID)
	}
	if a.EnqueuedAt.IsZero() {
		t.Fatalf("EnqueuedAt must be stamped")
	}
}
