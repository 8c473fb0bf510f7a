package corpus

import "testing"

func TestDocumentURL(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want string
	}{
		{
			name: "pmc preferred",
			doc:  Document{PMCID: "PMC8129774", DOI: "10.1000/x", Link: "https://example.org"},
			want: "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC8129774/",
		},
		{
			name: "doi fallback",
			doc:  Document{DOI: "10.1000/x", Link: "https://example.org"},
			want: "https://doi.org/10.1000/x",
		},
		{
			name: "course link fallback",
			doc:  Document{Link: "https://example.org/course"},
			want: "https://example.org/course",
		},
		{
			name: "no identifiers",
			doc:  Document{Title: "Untracked"},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.doc.URL(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSourceLabel(t *testing.T) {
	full := Document{Title: "Metformin Study", Year: 2021, Venue: "Diabetes Care"}
	if got := full.SourceLabel(); got != "Metformin Study - 2021 - Diabetes Care" {
		t.Errorf("got %q", got)
	}

	sparse := Document{Title: "Course Notes"}
	if got := sparse.SourceLabel(); got != "Course Notes" {
		t.Errorf("unknown parts should be omitted, got %q", got)
	}

	noVenue := Document{Title: "Old Study", Year: 1999}
	if got := noVenue.SourceLabel(); got != "Old Study - 1999" {
		t.Errorf("got %q", got)
	}
}
