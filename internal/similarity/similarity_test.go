package similarity

import (
	"math"
	"testing"
)

func TestCosine_IdenticalVectors(t *testing.T) {
	t.Parallel()

	v := []float64{0.3, -0.2, 0.9}
	if got := Cosine(v, v); math.Abs(got-1.0) > 1e-12 {
		t.Fatalf("cosine of identical vectors: got %f want 1.0", got)
	}
}

func TestCosine_DegenerateInputs(t *testing.T) {
	t.Parallel()

	v := []float64{1, 2, 3}
	zero := []float64{0, 0, 0}

	if got := Cosine(v, nil); got != 0 {
		t.Fatalf("cosine against empty vector: got %f want 0", got)
	}
	if got := Cosine(v, []float64{1, 2}); got != 0 {
		t.Fatalf("cosine with mismatched dimensions: got %f want 0", got)
	}
	if got := Cosine(v, zero); got != 0 {
		t.Fatalf("cosine against zero vector: got %f want 0", got)
	}
}

func TestCosine_Orthogonal(t *testing.T) {
	t.Parallel()

	if got := Cosine([]float64{1, 0}, []float64{0, 1}); got != 0 {
		t.Fatalf("cosine of orthogonal vectors: got %f want 0", got)
	}
}

func TestTokenSet(t *testing.T) {
	t.Parallel()

	set := TokenSet("BYD EV sales, 2Q25!")
	want := []string{"byd", "ev", "sales", "2q25"}
	if len(set) != len(want) {
		t.Fatalf("unexpected token count: got %d want %d (%v)", len(set), len(want), set)
	}
	for _, token := range want {
		if _, ok := set[token]; !ok {
			t.Fatalf("missing token %q in %v", token, set)
		}
	}
}

func TestDice(t *testing.T) {
	t.Parallel()

	a := TokenSet("china consumer")
	b := TokenSet("china consumer spending")
	empty := TokenSet("")

	if got := Dice(a, a); got != 1.0 {
		t.Fatalf("dice(A, A): got %f want 1.0", got)
	}
	if got := Dice(empty, empty); got != 1.0 {
		t.Fatalf("dice of two empty sets: got %f want 1.0", got)
	}
	if got := Dice(a, empty); got != 0.0 {
		t.Fatalf("dice against empty set: got %f want 0.0", got)
	}

	got := Dice(a, b)
	want := 2.0 * 2.0 / 5.0
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("dice overlap: got %f want %f", got, want)
	}
}

func TestIntersects(t *testing.T) {
	t.Parallel()

	if !Intersects(TokenSet("china internet"), TokenSet("internet platforms")) {
		t.Fatalf("expected shared token to intersect")
	}
	if Intersects(TokenSet("gold"), TokenSet("semiconductors")) {
		t.Fatalf("did not expect disjoint sets to intersect")
	}
}
