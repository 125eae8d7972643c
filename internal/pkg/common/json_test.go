package common

import "testing"

func TestExtractJSONBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"fenced", "Here you go:\n```json\n{\"items\":[{\"name\":\"Soup\"}]}\n```\nEnjoy", `{"items":[{"name":"Soup"}]}`},
		{"surrounding prose", `Sure! [{"name":"Tea"}] hope it helps`, `[{"name":"Tea"}]`},
		{"braces inside strings", `{"name":"a } b","x":{"y":"{"}} tail`, `{"name":"a } b","x":{"y":"{"}}`},
		{"escaped quote", `{"name":"say \"hi\" }"}`, `{"name":"say \"hi\" }"}`},
		{"no json", "nothing here", ""},
		{"unterminated", `{"a":[1,2`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSONBlock(tt.in); got != tt.want {
				t.Fatalf("ExtractJSONBlock(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestQuoteJSONKeys(t *testing.T) {
	got := QuoteJSONKeys(`{name: "Soup", ingredients: ["salt"]}`)
	want := `{"name": "Soup", "ingredients": ["salt"]}`
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestParseJSONStrictRejectsTrailingData(t *testing.T) {
	var v map[string]interface{}
	if err := ParseJSONStrict(`{"a":1} {"b":2}`, &v); err == nil {
		t.Fatalf("expected error for trailing data")
	}
	if err := ParseJSON(`{"a":1}`, &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
