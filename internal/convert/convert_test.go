package convert

import (
	"encoding/xml"
	"strings"
	"testing"
)

func TestToCSV(t *testing.T) {
	data := []any{
		map[string]any{"name": "Ada", "age": 30},
		map[string]any{"name": "Grace", "age": 40},
	}
	out, err := ToCSV(data)
	if err != nil {
		t.Fatalf("ToCSV() error = %v", err)
	}
	if !strings.Contains(out, "age,name") {
		t.Errorf("ToCSV() header missing expected columns:\n%s", out)
	}
	if !strings.Contains(out, "30,Ada") {
		t.Errorf("ToCSV() row missing expected values:\n%s", out)
	}
}

func TestToXMLRoundTripsScalars(t *testing.T) {
	data := map[string]any{"name": "Ada", "age": "30"}
	out, err := ToXML(data)
	if err != nil {
		t.Fatalf("ToXML() error = %v", err)
	}

	var parsed struct {
		XMLName xml.Name `xml:"root"`
		Name    string   `xml:"name"`
		Age     string   `xml:"age"`
	}
	if err := xml.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("xml.Unmarshal() error = %v\noutput:\n%s", err, out)
	}
	if parsed.Name != "Ada" || parsed.Age != "30" {
		t.Errorf("parsed = %+v, want Name=Ada Age=30", parsed)
	}
}

func TestToHTMLTable(t *testing.T) {
	data := []any{map[string]any{"name": "<script>"}}
	out, err := ToHTML(data)
	if err != nil {
		t.Fatalf("ToHTML() error = %v", err)
	}
	if strings.Contains(out, "<script>") {
		t.Errorf("ToHTML() did not escape user content:\n%s", out)
	}
}
