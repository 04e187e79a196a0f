package bqannotation

import (
	"context"
	"errors"
	"testing"

	"github.com/carbocation/orthoexpr"
)

func TestNewRequiresProjectAndDataset(t *testing.T) {
	for _, v := range [][2]string{{"", "ensembl"}, {"my-project", ""}, {"", ""}} {
		if _, err := New(context.Background(), v[0], v[1]); !errors.Is(err, orthoexpr.ErrConfiguration) {
			t.Fatalf("Expected a configuration error for %+v, got %v", v, err)
		}
	}
}

func TestTable(t *testing.T) {
	s := &Source{Project: "my-project", Dataset: "ensembl_105"}
	if got, expected := s.table("homologs"), "`my-project.ensembl_105.homologs`"; got != expected {
		t.Fatalf("Expected %s, got %s", expected, got)
	}
}
