package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

type testData struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestReadJSON(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantErr   bool
		wantName  string
		wantValue int
	}{
		{
			name:      "valid JSON",
			content:   `{"name": "test", "value": 42}`,
			wantName:  "test",
			wantValue: 42,
		},
		{
			name:    "invalid JSON",
			content: `{"name": "test", invalid}`,
			wantErr: true,
		},
		{
			name:    "empty object",
			content: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "test.json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write test file: %v", err)
			}

			var got testData
			err := ReadJSON(path, &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (got.Name != tt.wantName || got.Value != tt.wantValue) {
				t.Errorf("ReadJSON() = %+v, want name %q value %d", got, tt.wantName, tt.wantValue)
			}
		})
	}
}

func TestReadJSON_FileNotFound(t *testing.T) {
	var data testData
	if err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &data); !os.IsNotExist(err) {
		t.Errorf("ReadJSON() error = %v, want not exist", err)
	}
}

func TestWriteAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "out.html")

	if err := WriteAtomic(path, []byte("first"), 0644); err != nil {
		t.Fatalf("WriteAtomic failed: %v", err)
	}
	if err := WriteAtomic(path, []byte("second"), 0644); err != nil {
		t.Fatalf("WriteAtomic overwrite failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want %q", data, "second")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file was not cleaned up")
	}
}

func TestWriteJSONAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.json")
	data := testData{Name: "atomic", Value: 123}

	if err := WriteJSONAtomic(path, &data, 0644); err != nil {
		t.Fatalf("WriteJSONAtomic failed: %v", err)
	}

	var got testData
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if got != data {
		t.Errorf("got %+v, want %+v", got, data)
	}
}

func TestWriteJSONAtomic_InvalidData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.json")
	if err := WriteJSONAtomic(path, make(chan int), 0644); err == nil {
		t.Error("expected error for unmarshalable value")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should not exist after failed write")
	}
}
