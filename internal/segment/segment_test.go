package segment

import (
	"testing"

	"github.com/MrWong99/renoquote/pkg/catalog"
)

type wantNeed struct {
	text     string
	category catalog.Category
	task     Task
}

func checkNeeds(t *testing.T, got []Need, want []wantNeed) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d needs %+v, want %d", len(got), got, len(want))
	}
	for i, w := range want {
		g := got[i]
		if g.Text != w.text || g.Category != w.category || g.Task != w.task {
			t.Errorf("need[%d] = {%q %s %s}, want {%q %s %s}",
				i, g.Text, g.Category, g.Task, w.text, w.category, w.task)
		}
	}
}

func TestEnglish_Segment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		transcript string
		want       []wantNeed
	}{
		{
			name:       "glue and paint",
			transcript: "Need waterproof glue for bathroom tiles and white paint for the walls",
			want: []wantNeed{
				{"waterproof glue", catalog.CategoryAdhesives, TaskTiling},
				{"white paint", catalog.CategoryPaints, TaskPainting},
			},
		},
		{
			name:       "quantities are dropped from the phrase",
			transcript: "20 m2 of porcelain tiles for the bathroom floor. 2.5 kg of grout.",
			want: []wantNeed{
				{"porcelain tiles", catalog.CategoryTiles, TaskTiling},
				{"grout", catalog.CategoryAdhesives, TaskTiling},
			},
		},
		{
			name:       "compound head is the last noun",
			transcript: "Buy tile adhesive",
			want:       []wantNeed{{"tile adhesive", catalog.CategoryAdhesives, TaskTiling}},
		},
		{
			name:       "purpose steers the task",
			transcript: "wood glue for the kitchen cabinet",
			want:       []wantNeed{{"wood glue", catalog.CategoryAdhesives, TaskCarpentry}},
		},
		{
			name:       "work without a material",
			transcript: "fix the door",
			want:       []wantNeed{{"door", catalog.CategoryOther, TaskCarpentry}},
		},
		{
			name:       "duplicates collapse",
			transcript: "white paint, white paint",
			want:       []wantNeed{{"white paint", catalog.CategoryPaints, TaskPainting}},
		},
		{
			name:       "nothing recognisable",
			transcript: "Hello, we are renovating next month",
			want:       nil,
		},
	}
	seg := English()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			checkNeeds(t, seg.Segment(tt.transcript), tt.want)
		})
	}
}

func TestEnglish_KeepsRawClause(t *testing.T) {
	t.Parallel()

	needs := English().Segment("Need 20 m2 of porcelain tiles for the shower")
	if len(needs) != 1 {
		t.Fatalf("got %d needs, want 1", len(needs))
	}
	n := needs[0]
	if n.Raw != "Need 20 m2 of porcelain tiles for the shower" {
		t.Errorf("Raw = %q", n.Raw)
	}
	if n.Head != "Need 20 m2 of porcelain tiles" {
		t.Errorf("Head = %q, want %q", n.Head, "Need 20 m2 of porcelain tiles")
	}
	if n.Purpose != "the shower" {
		t.Errorf("Purpose = %q, want %q", n.Purpose, "the shower")
	}
}

func TestFrench_Segment(t *testing.T) {
	t.Parallel()

	got := French().Segment("Colle étanche pour carrelage de salle de bain et peinture blanche pour les murs")
	checkNeeds(t, got, []wantNeed{
		{"colle etanche", catalog.CategoryAdhesives, TaskTiling},
		{"peinture blanche", catalog.CategoryPaints, TaskPainting},
	})

	got = French().Segment("Il faut 15 m2 de parquet chêne; remplacer le robinet de la cuisine")
	checkNeeds(t, got, []wantNeed{
		{"parquet chene", catalog.CategoryWood, TaskCarpentry},
		{"robinet cuisine", catalog.CategoryPlumbing, TaskPlumbing},
	})
}

func TestAuto_DetectsLanguage(t *testing.T) {
	t.Parallel()

	a := Auto()
	tests := []struct {
		transcript string
		want       string
	}{
		{"Need waterproof glue for the bathroom and some paint", "en"},
		{"Besoin de colle pour le carrelage et de la peinture pour les murs", "fr"},
		{"", "en"},
	}
	for _, tt := range tests {
		if got := a.Detect(tt.transcript).Language().Name; got != tt.want {
			t.Errorf("Detect(%q) = %s, want %s", tt.transcript, got, tt.want)
		}
	}
}

func TestAuto_Segment(t *testing.T) {
	t.Parallel()

	got := Auto().Segment("Colle étanche pour carrelage de salle de bain et peinture blanche pour les murs")
	checkNeeds(t, got, []wantNeed{
		{"colle etanche", catalog.CategoryAdhesives, TaskTiling},
		{"peinture blanche", catalog.CategoryPaints, TaskPainting},
	})

	if got := Auto().Segment("nothing to see here"); got != nil {
		t.Errorf("Segment = %+v, want nil", got)
	}
}

func TestMatchWord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tok, word string
		want      bool
	}{
		{"tile", "tile", true},
		{"tiles", "tile", true},
		{"carreaux", "carreau", true},
		{"ceramique", "ceramic", true},
		{"peintures", "peinture", true},
		{"filler", "fil", false},
		{"tiler", "tile", false},
	}
	for _, tt := range tests {
		if got := matchWord(tt.tok, tt.word); got != tt.want {
			t.Errorf("matchWord(%q, %q) = %v, want %v", tt.tok, tt.word, got, tt.want)
		}
	}
}
