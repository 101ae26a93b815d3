package transport

import "testing"

func TestTextSegmentFromStreamAttributes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		attrs     map[string]string
		wantFinal bool
		wantSegID string
	}{
		{
			name:      "final segment with id",
			attrs:     map[string]string{finalAttr: "true", segmentIDAttr: "seg-7"},
			wantFinal: true,
			wantSegID: "seg-7",
		},
		{
			name:      "interim segment",
			attrs:     map[string]string{finalAttr: "false", segmentIDAttr: "seg-8"},
			wantFinal: false,
			wantSegID: "seg-8",
		},
		{
			name:      "missing final attribute",
			attrs:     map[string]string{segmentIDAttr: "seg-9"},
			wantFinal: false,
			wantSegID: "seg-9",
		},
		{
			name:      "nil attributes",
			attrs:     nil,
			wantFinal: false,
			wantSegID: "",
		},
		{
			name:      "final must be exactly true",
			attrs:     map[string]string{finalAttr: "True"},
			wantFinal: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			seg := textSegment("agent-1", "hello", tt.attrs)
			if seg.ParticipantIdentity != "agent-1" {
				t.Errorf("expected identity preserved, got %q", seg.ParticipantIdentity)
			}
			if seg.Text != "hello" {
				t.Errorf("expected text preserved, got %q", seg.Text)
			}
			if seg.Final != tt.wantFinal {
				t.Errorf("expected final=%v, got %v", tt.wantFinal, seg.Final)
			}
			if seg.SegmentID != tt.wantSegID {
				t.Errorf("expected segment id %q, got %q", tt.wantSegID, seg.SegmentID)
			}
		})
	}
}
