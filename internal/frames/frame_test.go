package frames

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		seq  int
		want string
	}{
		{0, "00-00-00.000"},
		{1, "00-00-00.040"},
		{7, "00-00-00.280"},
		{25, "00-00-01.000"},
		{1501, "00-01-00.040"},
		{90000, "01-00-00.000"},
		{93789, "01-02-31.560"},
		{8999999, "99-59-59.960"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.seq); got != tt.want {
			t.Errorf("FormatTimestamp(%d) = %s, want %s", tt.seq, got, tt.want)
		}
	}
}

func TestFormatTimestamp_SortsChronologically(t *testing.T) {
	// String order matches time order up to the last two-digit hour.
	seqs := []int{0, 24, 25, 1499, 1500, 89999, 90000, 899999, 900000, 8999999}
	for i := 1; i < len(seqs); i++ {
		prev, cur := FormatTimestamp(seqs[i-1]), FormatTimestamp(seqs[i])
		if prev >= cur {
			t.Errorf("FormatTimestamp(%d) = %s, not before FormatTimestamp(%d) = %s", seqs[i-1], prev, seqs[i], cur)
		}
	}
}

func TestParseSequence(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"temp_0001.jpg", 1, false},
		{"/tmp/frames/temp_0420.jpg", 420, false},
		{"temp_12345.jpg", 12345, false},
		{"temp_abc.jpg", 0, true},
		{"temp_.jpg", 0, true},
		{"frame_00-00-01.000.jpg", 0, true},
		{"temp_0001.png", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSequence(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSequence() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSequence() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIdentitiesAssign(t *testing.T) {
	ids := newIdentities()
	first, c1 := ids.assign(7)
	second, c2 := ids.assign(7)
	third, c3 := ids.assign(7)

	if first != "00-00-00.280" || c1 {
		t.Errorf("first = (%s, %v), want (00-00-00.280, false)", first, c1)
	}
	if second != "00-00-00.280~2" || !c2 {
		t.Errorf("second = (%s, %v), want (00-00-00.280~2, true)", second, c2)
	}
	if third != "00-00-00.280~3" || !c3 {
		t.Errorf("third = (%s, %v), want (00-00-00.280~3, true)", third, c3)
	}
}

func TestPrepareDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tmp_frames")
	if err := os.MkdirAll(filepath.Join(dir, ReportDir), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"temp_0001.jpg", "frame_00-00-00.040.jpg", "notes.txt", "cover.jpg", filepath.Join(ReportDir, "index.html")} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := PrepareDir(dir); err != nil {
		t.Fatalf("PrepareDir() error = %v", err)
	}

	entries, _ := os.ReadDir(dir)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	want := map[string]bool{"notes.txt": true, "cover.jpg": true}
	if len(names) != len(want) {
		t.Fatalf("remaining = %v, want %v", names, want)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected remaining entry %s", n)
		}
	}
}

func TestFramesDir(t *testing.T) {
	video := filepath.Join("videos", "cartoon.mp4")
	if got, want := FramesDir(video, "/out", true), filepath.Join("videos", "tmp_frames"); got != want {
		t.Errorf("FramesDir(useVideoDir) = %s, want %s", got, want)
	}
	if got, want := FramesDir(video, "/out", false), filepath.Join("/out", "cartoon_frames"); got != want {
		t.Errorf("FramesDir(outputDir) = %s, want %s", got, want)
	}
	if got, want := FramesDir(video, "", false), filepath.Join("videos", "tmp_frames"); got != want {
		t.Errorf("FramesDir(no outputDir) = %s, want %s", got, want)
	}
}
