package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	a := Triple{LabelProject, "프로젝트 AAA", RelUsesTech, LabelTechnology, "Python"}
	b := Triple{LabelCompany, "B 컴퍼니", RelConducts, LabelProject, "프로젝트 BBB"}
	sameNamesOtherRelation := Triple{LabelProject, "프로젝트 AAA", "MENTIONS", LabelTechnology, "Python"}

	tests := []struct {
		name      string
		in        []Triple
		want      []Triple
		wantStats NormalizeStats
	}{
		{
			name: "nil input",
			in:   nil,
			want: []Triple{},
		},
		{
			name:      "removes duplicates keeping first order",
			in:        []Triple{b, a, b, a, a},
			want:      []Triple{b, a},
			wantStats: NormalizeStats{Duplicates: 3},
		},
		{
			name:      "relation participates in equality",
			in:        []Triple{a, sameNamesOtherRelation},
			want:      []Triple{a, sameNamesOtherRelation},
			wantStats: NormalizeStats{},
		},
		{
			name: "trims before comparing",
			in: []Triple{
				a,
				{LabelProject, "  프로젝트 AAA ", RelUsesTech, LabelTechnology, "Python\t"},
			},
			want:      []Triple{a},
			wantStats: NormalizeStats{Duplicates: 1},
		},
		{
			name: "replaces invalid utf-8",
			in: []Triple{
				{LabelProject, "프로젝트 AAA", RelUsesTech, LabelTechnology, "Py\xffthon"},
				{LabelProject, "프로젝트 AAA", RelUsesTech, LabelTechnology, "Py\uFFFDthon"},
			},
			want:      []Triple{{LabelProject, "프로젝트 AAA", RelUsesTech, LabelTechnology, "Py\uFFFDthon"}},
			wantStats: NormalizeStats{Duplicates: 1},
		},
		{
			name: "drops empty names",
			in: []Triple{
				{LabelProject, "   ", RelUsesTech, LabelTechnology, "Python"},
				a,
				{LabelProject, "프로젝트 AAA", RelUsesTech, LabelTechnology, ""},
			},
			want:      []Triple{a},
			wantStats: NormalizeStats{Dropped: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, stats := Normalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantStats, stats)
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	e := newDefaultExtractor(t)
	once, _ := Normalize(e.Extract(sampleReport + sampleReport))
	twice, stats := Normalize(once)

	assert.Equal(t, once, twice)
	assert.Zero(t, stats.Duplicates)
	assert.Len(t, once, 6)

	seen := make(map[Triple]bool)
	for _, tr := range once {
		assert.False(t, seen[tr], "duplicate %s", tr)
		seen[tr] = true
	}
}
