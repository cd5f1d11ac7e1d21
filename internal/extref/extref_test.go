package extref

import (
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		ref  Ref
		want Parts
	}{
		{name: "system only", ref: Ref{Scheme: "sparx", Value: "EAID-1"}, want: Parts{System: "sparx", ID: "EAID-1"}},
		{name: "system and scope", ref: Ref{Scheme: "sparx@prod", Value: "EAID-1"}, want: Parts{System: "sparx", Scope: "prod", ID: "EAID-1"}},
		{name: "scope keeps extra at", ref: Ref{Scheme: "cmdb@env@eu", Value: "42"}, want: Parts{System: "cmdb", Scope: "env@eu", ID: "42"}},
		{name: "whitespace trimmed", ref: Ref{Scheme: " sparx @ prod ", Value: " x "}, want: Parts{System: "sparx", Scope: "prod", ID: "x"}},
		{name: "empty scheme", ref: Ref{Scheme: "", Value: "x"}, want: Parts{ID: "x"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Split(tc.ref)
			if got != tc.want {
				t.Errorf("Split(%v) = %+v, want %+v", tc.ref, got, tc.want)
			}
		})
	}
}

func TestKey(t *testing.T) {
	p := Parts{System: "sparx", Scope: "prod", ID: "EAID-1"}
	if got := p.Key(); got != "sparx|prod|EAID-1" {
		t.Errorf("Key() = %q", got)
	}

	noScope := Parts{System: "sparx", ID: "EAID-1"}
	if got := noScope.Key(); got != "sparx||EAID-1" {
		t.Errorf("Key() without scope = %q", got)
	}
}

func TestRefRoundTrip(t *testing.T) {
	for _, p := range []Parts{
		{System: "sparx", ID: "a"},
		{System: "sparx", Scope: "prod", ID: "a"},
	} {
		if got := Split(p.Ref()); got != p {
			t.Errorf("Split(Ref()) = %+v, want %+v", got, p)
		}
	}
}

func TestNormalizeDropsInvalid(t *testing.T) {
	got := Normalize([]Ref{
		{Scheme: "", Value: "x"},
		{Scheme: "sparx", Value: ""},
		{Scheme: "sparx", Value: "ok"},
		{Scheme: "  ", Value: "  "},
	})
	want := []Parts{{System: "sparx", ID: "ok"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %+v, want %+v", got, want)
	}
}

func TestNormalizeKeepsLastOccurrence(t *testing.T) {
	got := Normalize([]Ref{
		{Scheme: "a", Value: "1"},
		{Scheme: "b", Value: "2"},
		{Scheme: "a", Value: "1"},
	})
	want := []Parts{
		{System: "b", ID: "2"},
		{System: "a", ID: "1"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %+v, want %+v", got, want)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	refs := []Ref{
		{Scheme: "a", Value: "1"},
		{Scheme: "b@s", Value: "2"},
		{Scheme: "a", Value: "1"},
		{Scheme: "", Value: "dropped"},
	}

	once := Normalize(refs)

	asRefs := make([]Ref, len(once))
	for i, p := range once {
		asRefs[i] = p.Ref()
	}
	twice := Normalize(asRefs)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("normalizing twice changed the result: %+v vs %+v", once, twice)
	}
}

func TestKeySet(t *testing.T) {
	set := KeySet([]Parts{{System: "a", ID: "1"}, {System: "b", ID: "2"}})
	if len(set) != 2 {
		t.Fatalf("KeySet size = %d, want 2", len(set))
	}
	if _, ok := set["a||1"]; !ok {
		t.Error("missing key a||1")
	}
}
