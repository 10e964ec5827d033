package textnorm

import (
	"slices"
	"testing"
)

func TestFold(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Peinture ÉCOLOGIQUE": "peinture ecologique",
		"Île-de-France":       "ile-de-france",
		"cœur de chêne":       "coeur de chene",
		"20 m²":               "20 m2",
		"plain ascii":         "plain ascii",
	}
	for in, want := range tests {
		if got := Fold(in); got != want {
			t.Errorf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()

	got := Tokens("Colle d'époxy, 5kg; l'huile!")
	want := []string{"colle", "d", "epoxy", "5kg", "l", "huile"}
	if !slices.Equal(got, want) {
		t.Fatalf("Tokens = %v, want %v", got, want)
	}
}

func TestKeywords(t *testing.T) {
	t.Parallel()

	got := Keywords("Need waterproof glue for the bathroom tiles and glue")
	want := []string{"waterproof", "glue", "bathroom", "tiles"}
	if !slices.Equal(got, want) {
		t.Fatalf("Keywords = %v, want %v", got, want)
	}

	got = Keywords("Il faut de la peinture blanche pour les murs")
	want = []string{"peinture", "blanche"}
	if !slices.Equal(got, want) {
		t.Fatalf("Keywords (fr) = %v, want %v", got, want)
	}
}
