package extraction

import "testing"

func TestDecodeLenient(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int // entity count; -1 means decode must fail
	}{
		{
			name: "bare json",
			raw:  `{"entities": ["pgvector", "postgres"]}`,
			want: 2,
		},
		{
			name: "fenced json",
			raw:  "```json\n{\"entities\": [\"pgvector\"]}\n```",
			want: 1,
		},
		{
			name: "fence without language tag",
			raw:  "```\n{\"entities\": [\"pgvector\"]}\n```",
			want: 1,
		},
		{
			name: "prose around the object",
			raw:  `Here are the entities: {"entities": ["rrf"]} as requested.`,
			want: 1,
		},
		{
			name: "empty result",
			raw:  `{"entities": []}`,
			want: 0,
		},
		{
			name: "no json at all",
			raw:  "I could not find any entities in this text.",
			want: -1,
		},
		{
			name: "truncated json",
			raw:  `{"entities": ["pg`,
			want: -1,
		},
		{
			name: "empty string",
			raw:  "",
			want: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result EntityResult
			ok := decodeLenient(tt.raw, &result)
			if tt.want < 0 {
				if ok {
					t.Errorf("decodeLenient(%q) = true, want failure", tt.raw)
				}
				return
			}
			if !ok {
				t.Fatalf("decodeLenient(%q) failed", tt.raw)
			}
			if len(result.Entities) != tt.want {
				t.Errorf("got %d entities, want %d", len(result.Entities), tt.want)
			}
		})
	}
}

func TestDecodeLenientRelationships(t *testing.T) {
	raw := "```json\n" + `{"relationships": [{"relationship": "depends_on", "targetConcept": "pgvector"}, {"relationship": "elaborates_on", "targetChunkId": "f1_chunk_2"}]}` + "\n```"

	var result RelationshipResult
	if !decodeLenient(raw, &result) {
		t.Fatal("decodeLenient failed")
	}
	if len(result.Relationships) != 2 {
		t.Fatalf("got %d relationships, want 2", len(result.Relationships))
	}
	if rel := result.Relationships[0]; rel.Relationship != "depends_on" || rel.TargetConcept != "pgvector" {
		t.Errorf("unexpected relationship: %+v", rel)
	}
	if rel := result.Relationships[1]; rel.Relationship != "elaborates_on" || rel.TargetChunkID != "f1_chunk_2" {
		t.Errorf("unexpected relationship: %+v", rel)
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"no fences", "no fences"},
		{"```json\n{}\n```", "{}"},
		{"```\n{}\n```", "{}"},
		{"  ```json\n{\"a\": 1}\n```  ", `{"a": 1}`},
	}
	for _, tt := range tests {
		if got := stripCodeFences(tt.in); got != tt.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
