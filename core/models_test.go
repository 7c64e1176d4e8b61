package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantSame bool
	}{
		{
			name:     "same content produces same ID",
			content:  "Genesis|1|1-1|single|KJV",
			wantSame: true,
		},
		{
			name:     "empty string",
			content:  "",
			wantSame: true,
		},
		{
			name:     "long content",
			content:  "This is a much longer piece of content that should still hash consistently",
			wantSame: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if tt.wantSame && id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent(ChunkKey("John", 3, 16, 16, StrategySingle, "KJV"))
	id2 := IDFromContent(ChunkKey("John", 3, 16, 16, StrategyContext, "KJV"))

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different strategies")
	}
}

func TestChunkKey(t *testing.T) {
	got := ChunkKey("1 John", 4, 7, 9, StrategyGrouped, "WEB")
	want := "1 John|4|7-9|grouped|WEB"
	if got != want {
		t.Errorf("ChunkKey() = %q, want %q", got, want)
	}
}

func TestPassage_Reference(t *testing.T) {
	p := Passage{Book: "Romans", Chapter: 8, Verse: 28}
	if got := p.Reference(); got != "Romans 8:28" {
		t.Errorf("Reference() = %q", got)
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{in: "single", want: StrategySingle},
		{in: "", want: StrategySingle},
		{in: " Context ", want: StrategyContext},
		{in: "GROUPED", want: StrategyGrouped},
		{in: "paragraph", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseStrategy(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStrategy(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseStrategy(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseStrictness(t *testing.T) {
	tests := []struct {
		in      string
		want    Strictness
		wantErr bool
	}{
		{in: "", want: StrictnessBalanced},
		{in: "balanced", want: StrictnessBalanced},
		{in: "Strict", want: StrictnessStrict},
		{in: "relaxed", want: StrictnessRelaxed},
		{in: "lenient", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrictness(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStrictness(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseStrictness(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestStrictness_String(t *testing.T) {
	if StrictnessStrict.String() != "strict" || StrictnessRelaxed.String() != "relaxed" || StrictnessBalanced.String() != "balanced" {
		t.Errorf("unexpected strictness names")
	}
}
