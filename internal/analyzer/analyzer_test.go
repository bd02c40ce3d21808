package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_DeclarationOrderKept(t *testing.T) {
	decls := []Decl{
		{Name: "A", Read: true, Write: true, CanWrite: true},
		{Name: "B", Deps: []int{0}, Read: true},
		{Name: "C", Deps: []int{0, 1}, Read: true},
	}

	analyzed, err := Analyze("T", decls)
	require.NoError(t, err)
	assert.True(t, analyzed.IsValid())
	assert.Equal(t, []int{0, 1, 2}, analyzed.Order)
}

func TestAnalyze_ForwardReferenceReordered(t *testing.T) {
	// Ref is declared before the field its offset comes from
	decls := []Decl{
		{Name: "Ref", Deps: []int{2}, Read: true},
		{Name: "Magic", Read: true},
		{Name: "Base", Read: true},
	}

	analyzed, err := Analyze("T", decls)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 0}, analyzed.Order)
}

func TestAnalyze_Cycle(t *testing.T) {
	decls := []Decl{
		{Name: "Head", Read: true},
		{Name: "A", Deps: []int{2}, Read: true},
		{Name: "B", Deps: []int{1}, Read: true},
	}

	analyzed, err := Analyze("T", decls)
	require.Error(t, err)
	require.Len(t, analyzed.Errors, 1)
	assert.Contains(t, analyzed.Errors[0], "dependency cycle")
	assert.Contains(t, analyzed.Errors[0], "A")
	assert.Contains(t, analyzed.Errors[0], "B")
	assert.NotContains(t, analyzed.Errors[0], "Head")
}

func TestAnalyze_SelfReference(t *testing.T) {
	decls := []Decl{{Name: "Loop", Deps: []int{0}, Read: true}}

	analyzed, err := Analyze("T", decls)
	require.Error(t, err)
	assert.Contains(t, analyzed.Errors[0], "references itself")
}

func TestAnalyze_Foreign(t *testing.T) {
	decls := []Decl{{Name: "X", Foreign: []string{"Other#0"}, Read: true}}

	analyzed, err := Analyze("T", decls)
	require.Error(t, err)
	assert.Contains(t, analyzed.Errors[0], "not declared in T")
}

func TestAnalyze_NotWritable(t *testing.T) {
	decls := []Decl{
		{Name: "Const", Read: true, Write: true, CanWrite: false},
		{Name: "Other", Read: true, Write: true, CanWrite: true},
	}

	analyzed, err := Analyze("T", decls)
	require.Error(t, err)
	require.Len(t, analyzed.Errors, 1)
	assert.True(t, strings.HasPrefix(analyzed.Errors[0], "Const:"))
}

func TestAnalyze_Collisions(t *testing.T) {
	decls := []Decl{
		{Name: "Header", Read: true, Region: &Region{Start: 0, Size: 8}},
		{Name: "Flags", Read: true, Region: &Region{Start: 4, Size: 2}},
		{Name: "Footer", Read: true, Region: &Region{Start: 8, Size: 8}},
		// Parameters occupy nothing.
		{Name: "Param", Region: &Region{Start: 0, Size: 8}},
	}

	analyzed, err := Analyze("T", decls)
	require.NoError(t, err)
	require.Len(t, analyzed.Warnings, 1)
	assert.Equal(t, "collision: Header [0, 8) overlaps Flags [4, 6)", analyzed.Warnings[0])
}

func TestAnalyze_WideRegionOverlapsSeveral(t *testing.T) {
	decls := []Decl{
		{Name: "Block", Read: true, Region: &Region{Start: 0, Size: 16}},
		{Name: "Magic", Read: true, Region: &Region{Start: 0, Size: 4}},
		{Name: "Count", Read: true, Region: &Region{Start: 4, Size: 2}},
		{Name: "Crc", Read: true, Region: &Region{Start: 12, Size: 4}},
		{Name: "Next", Read: true, Region: &Region{Start: 16, Size: 4}},
	}

	analyzed, err := Analyze("T", decls)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"collision: Block [0, 16) overlaps Magic [0, 4)",
		"collision: Block [0, 16) overlaps Count [4, 6)",
		"collision: Block [0, 16) overlaps Crc [12, 16)",
	}, analyzed.Warnings)
}

func TestOrder(t *testing.T) {
	tests := []struct {
		name      string
		deps      [][]int
		want      []int
		wantCycle bool
	}{
		{"empty", nil, []int{}, false},
		{"independent", [][]int{nil, nil, nil}, []int{0, 1, 2}, false},
		{"chain reversed", [][]int{{1}, {2}, nil}, []int{2, 1, 0}, false},
		{"diamond", [][]int{nil, {0}, {0}, {1, 2}}, []int{0, 1, 2, 3}, false},
		{"lowest index first", [][]int{{3}, nil, {1}, nil}, []int{1, 2, 3, 0}, false},
		{"duplicate edge", [][]int{nil, {0, 0}}, []int{0, 1}, false},
		{"two cycle", [][]int{{1}, {0}}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, cycle := Order(len(tt.deps), func(i int) []int { return tt.deps[i] })
			if tt.wantCycle {
				assert.Nil(t, order)
				require.NotEmpty(t, cycle)
				assert.Equal(t, cycle[0], cycle[len(cycle)-1])
				return
			}
			assert.Nil(t, cycle)
			assert.Equal(t, tt.want, order)
		})
	}
}
