package automation

import (
	"context"
	"testing"
	"time"

	"whatsapp-autoresponder/internal/models"
)

func TestShouldProcess(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute).UnixMilli()
	future := now.Add(30 * time.Minute).UnixMilli()

	tests := []struct {
		name    string
		global  bool
		pause   int64
		text    string
		want    Gate
		cleared bool
	}{
		{name: "no entry", text: "qualquer", want: GateProcess},
		{name: "global pause", global: true, text: "oi", want: GateSuppress},
		{name: "expired entry is cleared", pause: past, text: "qualquer", want: GateProcess, cleared: true},
		{name: "active entry suppresses", pause: future, text: "qualquer", want: GateSuppress},
		{name: "greeting reactivates", pause: future, text: "Olá", want: GateReactivated, cleared: true},
		{name: "reset keyword reactivates", pause: future, text: " 0 ", want: GateReactivated, cleared: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := models.DefaultDocument()
			doc.GlobalPause = tt.global
			if tt.pause != 0 {
				doc.PauseRegistry["5511"] = tt.pause
			}
			st := openStore(t, doc)
			pm := NewPauseManager(st)
			pm.now = func() time.Time { return now }

			ctx := context.Background()
			snap, _ := st.Snapshot(ctx)
			got, err := pm.ShouldProcess(ctx, snap, "5511", tt.text)
			if err != nil {
				t.Fatalf("ShouldProcess: %v", err)
			}
			if got != tt.want {
				t.Fatalf("gate = %v, want %v", got, tt.want)
			}

			after, _ := st.Snapshot(ctx)
			_, still := after.PauseRegistry["5511"]
			if tt.pause != 0 && still == tt.cleared {
				t.Fatalf("entry present=%v, want cleared=%v", still, tt.cleared)
			}
		})
	}
}

func TestEnterPause_OverwritesEntry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	doc := models.DefaultDocument()
	doc.PauseRegistry["5511"] = now.Add(5 * time.Hour).UnixMilli()
	st := openStore(t, doc)
	pm := NewPauseManager(st)
	pm.now = func() time.Time { return now }

	ctx := context.Background()
	exp, err := pm.EnterPause(ctx, "5511", 10)
	if err != nil {
		t.Fatalf("EnterPause: %v", err)
	}
	want := now.Add(10 * time.Minute)
	if !exp.Equal(want) {
		t.Fatalf("expiry = %v, want %v", exp, want)
	}
	snap, _ := st.Snapshot(ctx)
	if snap.PauseRegistry["5511"] != want.UnixMilli() {
		t.Fatalf("stored expiry = %d, want %d", snap.PauseRegistry["5511"], want.UnixMilli())
	}
	if !pm.Paused(snap, "5511") {
		t.Fatalf("contact should be paused")
	}
	pm.now = func() time.Time { return want.Add(time.Millisecond) }
	if pm.Paused(snap, "5511") {
		t.Fatalf("pause should have lapsed")
	}
}
