package google

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"insight/internal/core"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{ServiceAccountJSON: "{}"}, nil)
	if err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if err.Error() != "missing spreadsheet id" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := New(context.Background(), Config{SpreadsheetID: "sheet"}, nil)
	if err == nil {
		t.Fatal("expected error without credentials")
	}
	if !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCredentials_Precedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sa.json")
	if err := os.WriteFile(file, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", filepath.Join(dir, "adc.json"))

	got, err := credentials(Config{ServiceAccountJSON: `{"from":"inline"}`, ServiceAccountFile: file})
	if err != nil || string(got) != `{"from":"inline"}` {
		t.Errorf("inline should win, got %q, %v", got, err)
	}

	got, err = credentials(Config{ServiceAccountFile: file})
	if err != nil || string(got) != `{"from":"file"}` {
		t.Errorf("file should be read, got %q, %v", got, err)
	}

	_, err = credentials(Config{})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Errorf("expected missing ADC file error, got %v", err)
	}
}

func TestToRawRows(t *testing.T) {
	values := [][]interface{}{
		{"Date", "Department", "Product", "Sales", "COGS", "Profit"},
		{"01/15/2021", "Retail ", "Widget", "1,000.00", "(200.00)", "800.00"},
		{"01/16/2021", "Retail", nil, 12.5},
		{},
	}

	got := toRawRows(values)
	want := []core.RawRow{
		{"Date", "Department", "Product", "Sales", "COGS", "Profit"},
		{"01/15/2021", "Retail ", "Widget", "1,000.00", "(200.00)", "800.00"},
		{"01/16/2021", "Retail", "", "12.5"},
		{},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("toRawRows() = %#v, want %#v", got, want)
	}

	records, err := core.Normalize(got)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(records) != 2 || records[0].Department != "Retail" {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestFetchRows_NotInitialized(t *testing.T) {
	c := &Client{}
	if _, err := c.FetchRows(context.Background()); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
}
