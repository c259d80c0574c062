package markup

import (
	"strings"
	"testing"
)

const testPage = `<!DOCTYPE html>
<html><head><style>.block{position:absolute}</style></head>
<body>
<div class="block" style="position:absolute;left:10vw;top:5vh;width:80vw;height:20vh;z-index:2">header</div>
<div class="block hero" style="position:absolute;left:10vw;top:30vh;width:80vw;height:40vh">hero</div>
<div class="sidebar">not a block</div>
</body></html>`

func TestExtractBlocks(t *testing.T) {
	blocks, err := ExtractBlocks(testPage)
	if err != nil {
		t.Fatalf("ExtractBlocks: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("len(blocks) = %d, want 2", len(blocks))
	}

	first := blocks[0]
	if first.Left != "10vw" || first.Top != "5vh" {
		t.Errorf("first block position = (%s,%s), want (10vw,5vh)", first.Left, first.Top)
	}
	if first.ZIndex != "2" {
		t.Errorf("first block z-index = %s, want 2", first.ZIndex)
	}

	// Second block has no explicit z-index, falls back to 0.
	if blocks[1].ZIndex != "0" {
		t.Errorf("second block z-index = %s, want 0", blocks[1].ZIndex)
	}
}

func TestCountBlocks(t *testing.T) {
	n, err := CountBlocks(testPage)
	if err != nil {
		t.Fatalf("CountBlocks: %v", err)
	}
	if n != 2 {
		t.Errorf("CountBlocks = %d, want 2", n)
	}
}

func TestParseStyle(t *testing.T) {
	got := ParseStyle("left: 10vw; top:5vh ;; background: rgba(0,0,0,0.1)")
	if got["left"] != "10vw" {
		t.Errorf("left = %q, want 10vw", got["left"])
	}
	if got["top"] != "5vh" {
		t.Errorf("top = %q, want 5vh", got["top"])
	}
	if got["background"] != "rgba(0,0,0,0.1)" {
		t.Errorf("background = %q", got["background"])
	}
	if len(ParseStyle("")) != 0 {
		t.Error("empty style should yield no entries")
	}
}

func TestUpdateBlockPositions(t *testing.T) {
	updated, err := UpdateBlockPositions(testPage, []Position{
		{Left: "0.0vw", Top: "0.0vh", Width: "50.0vw", Height: "10.0vh"},
	})
	if err != nil {
		t.Fatalf("UpdateBlockPositions: %v", err)
	}

	blocks, err := ExtractBlocks(updated)
	if err != nil {
		t.Fatalf("ExtractBlocks after update: %v", err)
	}
	if blocks[0].Left != "0.0vw" || blocks[0].Width != "50.0vw" {
		t.Errorf("updated block = %+v, want left 0.0vw width 50.0vw", blocks[0])
	}
	// Non-positional attributes survive the rewrite.
	if blocks[0].ZIndex != "2" {
		t.Errorf("z-index = %s, want 2 preserved", blocks[0].ZIndex)
	}
	// Second block untouched.
	if blocks[1].Top != "30vh" {
		t.Errorf("second block top = %s, want 30vh", blocks[1].Top)
	}
}

func TestUpdateBlockPositions_ExtraUpdatesIgnored(t *testing.T) {
	updated, err := UpdateBlockPositions(testPage, []Position{
		{Top: "1.0vh"}, {Top: "2.0vh"}, {Top: "3.0vh"},
	})
	if err != nil {
		t.Fatalf("UpdateBlockPositions: %v", err)
	}
	if !strings.Contains(updated, "2.0vh") {
		t.Error("second block update not applied")
	}
}

func TestPixelsToViewport(t *testing.T) {
	pos := PixelsToViewport(39, 84.4, 195, 422, 390, 844)
	if pos.Left != "10.0vw" {
		t.Errorf("Left = %s, want 10.0vw", pos.Left)
	}
	if pos.Top != "10.0vh" {
		t.Errorf("Top = %s, want 10.0vh", pos.Top)
	}
	if pos.Width != "50.0vw" {
		t.Errorf("Width = %s, want 50.0vw", pos.Width)
	}
	if pos.Height != "50.0vh" {
		t.Errorf("Height = %s, want 50.0vh", pos.Height)
	}
}
