package distinfo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecord(t *testing.T) {
	var r Record
	r.Add("my_package/__init__.py", []byte("print('hi')\n"))
	r.Add("odd,name.txt", nil)

	got := string(r.Bytes("demo_package-0.1.0.dist-info/RECORD"))
	want := "my_package/__init__.py," + Hash([]byte("print('hi')\n")) + ",12\n" +
		"\"odd,name.txt\"," + Hash(nil) + ",0\n" +
		"demo_package-0.1.0.dist-info/RECORD,,\n"
	if got != want {
		t.Errorf("Bytes() =\n%s\nwant:\n%s", got, want)
	}

	rows, err := ParseRecord(strings.NewReader(got))
	if err != nil {
		t.Fatalf("ParseRecord() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[1].Path != "odd,name.txt" {
		t.Errorf("row 1 path = %q", rows[1].Path)
	}
	if rows[2].Hash != "" || rows[2].Size != "" {
		t.Errorf("RECORD row = %+v, want empty hash and size", rows[2])
	}
	if err := rows[0].Verify([]byte("print('hi')\n")); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
	if err := rows[0].Verify([]byte("tampered")); err == nil {
		t.Error("Verify() accepted tampered content")
	}
}

func TestHash(t *testing.T) {
	// sha256 of the empty string, urlsafe base64 without padding.
	want := "sha256=47DEQpj8HBSa-_TImW-5JCeuQeRkm5NMpJWZG3hSuFU"
	if got := Hash(nil); got != want {
		t.Errorf("Hash(nil) = %q, want %q", got, want)
	}
}

func TestParseRecordInvalid(t *testing.T) {
	if _, err := ParseRecord(strings.NewReader("a,b\n")); err == nil {
		t.Error("ParseRecord() accepted a two-field row")
	}
}

func TestWriteDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "demo_package-0.1.0.dist-info")
	if err := WriteDir(dir, []File{{Name: WheelFile, Data: []byte("Wheel-Version: 1.0\n")}}); err != nil {
		t.Fatalf("WriteDir() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, WheelFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Wheel-Version: 1.0\n" {
		t.Errorf("WHEEL = %q", data)
	}
}
