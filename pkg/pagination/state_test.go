package pagination

import (
	"testing"
	"time"
)

func testItem(id, orderingKey string) WorkItem {
	return WorkItem{
		ID:            id,
		SourceLocator: "https://source.example/documents/" + id,
		TargetName:    id + ".pdf",
		OrderingKey:   orderingKey,
	}
}

func TestState_Merge_Idempotent(t *testing.T) {
	st := newState(Bounds{})
	page := []WorkItem{testItem("a", "2024-03-01"), testItem("b", "2024-03-02")}

	if added := st.Merge(page); added != 2 {
		t.Fatalf("first Merge added %d, want 2", added)
	}

	// Re-merging the same page (resume case) must not duplicate
	for i := 0; i < 3; i++ {
		if added := st.Merge(page); added != 0 {
			t.Errorf("repeat Merge added %d, want 0", added)
		}
	}

	if len(st.WorkItems) != 2 {
		t.Errorf("WorkItems length = %d, want 2", len(st.WorkItems))
	}
	if len(st.CollectedIDs) != 2 {
		t.Errorf("CollectedIDs length = %d, want 2", len(st.CollectedIDs))
	}
}

func TestState_Merge_PartialOverlap(t *testing.T) {
	st := newState(Bounds{})
	st.Merge([]WorkItem{testItem("a", "1"), testItem("b", "2")})

	added := st.Merge([]WorkItem{testItem("b", "2"), testItem("c", "3")})
	if added != 1 {
		t.Errorf("Merge added %d, want 1", added)
	}

	want := []string{"a", "b", "c"}
	if len(st.CollectedIDs) != len(want) {
		t.Fatalf("CollectedIDs = %v, want %v", st.CollectedIDs, want)
	}
	for i, id := range want {
		if st.CollectedIDs[i] != id {
			t.Errorf("CollectedIDs[%d] = %s, want %s", i, st.CollectedIDs[i], id)
		}
		if st.WorkItems[i].ID != id {
			t.Errorf("WorkItems[%d].ID = %s, want %s", i, st.WorkItems[i].ID, id)
		}
	}
}

func TestState_Merge_SkipsEmptyID(t *testing.T) {
	st := newState(Bounds{})

	if added := st.Merge([]WorkItem{{ID: ""}, testItem("a", "1")}); added != 1 {
		t.Errorf("Merge added %d, want 1 (empty id skipped)", added)
	}
}

func TestState_Contains(t *testing.T) {
	st := newState(Bounds{})
	st.Merge([]WorkItem{testItem("a", "1")})

	if !st.Contains("a") {
		t.Error("Contains(a) = false after merge")
	}
	if st.Contains("b") {
		t.Error("Contains(b) = true, never merged")
	}
}

func TestState_CollectedIDSet_IsACopy(t *testing.T) {
	st := newState(Bounds{})
	st.Merge([]WorkItem{testItem("a", "1")})

	set := st.CollectedIDSet()
	set["b"] = true

	if st.Contains("b") {
		t.Error("Mutating the returned set leaked into the state")
	}
}

func TestState_EncodeDecode_RoundTrip(t *testing.T) {
	st := newState(Bounds{Lower: "2024-01-01", Upper: "2024-12-31"})
	st.CurrentPage = 4
	st.TotalPages = 9
	st.Merge([]WorkItem{testItem("a", "2024-02-01"), testItem("b", "2024-02-02")})

	data, err := st.encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := decodeState(data)
	if err != nil {
		t.Fatalf("decodeState failed: %v", err)
	}

	if decoded.CurrentPage != 4 || decoded.TotalPages != 9 {
		t.Errorf("pages = %d/%d, want 4/9", decoded.CurrentPage, decoded.TotalPages)
	}
	if decoded.LowerBound != "2024-01-01" || decoded.UpperBound != "2024-12-31" {
		t.Errorf("bounds = %q/%q, want persisted bounds", decoded.LowerBound, decoded.UpperBound)
	}
	if !decoded.IsRunning {
		t.Error("IsRunning lost in round trip")
	}
	if len(decoded.WorkItems) != 2 {
		t.Fatalf("WorkItems length = %d, want 2", len(decoded.WorkItems))
	}

	// The dedup index must be functional after decode
	if !decoded.Contains("a") || !decoded.Contains("b") {
		t.Error("dedup index not rebuilt on decode")
	}
	if added := decoded.Merge([]WorkItem{testItem("a", "x")}); added != 0 {
		t.Errorf("Merge after decode added %d, want 0", added)
	}
}

func TestDecodeState_RejectsInvalidRecords(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{
			name: "not json",
			data: `{{{`,
		},
		{
			name: "wrong type for work items",
			data: `{"version":1,"current_page":1,"total_pages":1,"collected_ids":[],"work_items":"corrupted"}`,
		},
		{
			name: "unsupported version",
			data: `{"version":99,"current_page":1,"total_pages":1,"collected_ids":[],"work_items":[]}`,
		},
		{
			name: "current page below one",
			data: `{"version":1,"current_page":0,"total_pages":1,"collected_ids":[],"work_items":[]}`,
		},
		{
			name: "total pages below one",
			data: `{"version":1,"current_page":1,"total_pages":0,"collected_ids":[],"work_items":[]}`,
		},
		{
			name: "ids and items out of lockstep",
			data: `{"version":1,"current_page":1,"total_pages":1,"collected_ids":["a","b"],"work_items":[{"id":"a"}]}`,
		},
		{
			name: "duplicate collected id",
			data: `{"version":1,"current_page":1,"total_pages":1,"collected_ids":["a","a"],"work_items":[{"id":"a"},{"id":"a"}]}`,
		},
		{
			name: "item missing from collected ids",
			data: `{"version":1,"current_page":1,"total_pages":1,"collected_ids":["a"],"work_items":[{"id":"b"}]}`,
		},
		{
			name: "running and complete both set",
			data: `{"version":1,"current_page":1,"total_pages":1,"collected_ids":[],"work_items":[],"is_running":true,"is_complete":true}`,
		},
		{
			name: "complete and cancelled both set",
			data: `{"version":1,"current_page":1,"total_pages":1,"collected_ids":[],"work_items":[],"is_complete":true,"cancelled":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeState([]byte(tt.data)); err == nil {
				t.Error("decodeState accepted an invalid record")
			}
		})
	}
}

func TestDecodeState_AcceptsInitialFlags(t *testing.T) {
	// The all-false flag combination is the valid initial state.
	data := `{"version":1,"current_page":1,"total_pages":1,"collected_ids":[],"work_items":[]}`
	if _, err := decodeState([]byte(data)); err != nil {
		t.Errorf("decodeState rejected valid initial record: %v", err)
	}
}

func TestState_MarkComplete(t *testing.T) {
	st := newState(Bounds{})
	now := time.Now()

	st.markComplete(now)

	if st.IsRunning || st.Cancelled || !st.IsComplete {
		t.Errorf("flags after markComplete = running=%v complete=%v cancelled=%v",
			st.IsRunning, st.IsComplete, st.Cancelled)
	}
	if st.CompletedAt == nil || !st.CompletedAt.Equal(now) {
		t.Errorf("CompletedAt = %v, want %v", st.CompletedAt, now)
	}
}

func TestState_MarkCancelled(t *testing.T) {
	st := newState(Bounds{})

	st.markCancelled()

	if st.IsRunning || st.IsComplete || !st.Cancelled {
		t.Errorf("flags after markCancelled = running=%v complete=%v cancelled=%v",
			st.IsRunning, st.IsComplete, st.Cancelled)
	}
}
