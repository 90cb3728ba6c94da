package verify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/longbox-labs/entity-verify/internal/model"
)

func rec(source string, confidence float64, fields map[string]any) *model.SourceRecord {
	return &model.SourceRecord{Source: source, Confidence: confidence, Fields: fields}
}

func TestMerge_SkipsEmptyValues(t *testing.T) {
	out := merge([]*model.SourceRecord{
		rec("a", 0.9, map[string]any{
			model.FieldRealName: "",
			model.FieldTeams:    []string{},
			model.FieldPowers:   []string{"webs"},
		}),
	}, time.Now().UTC())

	assert.Equal(t, map[string]any{model.FieldPowers: []string{"webs"}}, out.VerifiedFields)
	assert.Equal(t, model.StatusVerified, out.Status)
}

func TestMerge_SliceValuesCompareStructurally(t *testing.T) {
	out := merge([]*model.SourceRecord{
		rec("a", 0.9, map[string]any{model.FieldCreators: []string{"Stan Lee", "Steve Ditko"}}),
		rec("b", 0.8, map[string]any{model.FieldCreators: []string{"Stan Lee", "Steve Ditko"}}),
	}, time.Now().UTC())

	assert.Nil(t, out.SourceConflicts)
	assert.Equal(t, []string{"a", "b"}, out.DataSourceBreakdown[model.FieldCreators])
}

func TestMerge_ConflictKeepsAllValues(t *testing.T) {
	out := merge([]*model.SourceRecord{
		rec("a", 0.9, map[string]any{model.FieldGender: "Male"}),
		rec("b", 0.8, map[string]any{model.FieldGender: "male"}),
		rec("c", 0.7, map[string]any{model.FieldGender: "M"}),
	}, time.Now().UTC())

	assert.Equal(t, model.StatusDisputed, out.Status)
	assert.Len(t, out.SourceConflicts[model.FieldGender], 3)
	assert.Equal(t, "Male", out.VerifiedFields[model.FieldGender])
	assert.Equal(t, []string{"a", "b", "c"}, out.DataSourceBreakdown[model.FieldGender])
}

func TestMerge_DisjointFieldsUnion(t *testing.T) {
	out := merge([]*model.SourceRecord{
		rec("a", 0.9, map[string]any{model.FieldRealName: "Peter Parker"}),
		rec("b", 0.8, map[string]any{model.FieldPublisher: "Marvel Comics"}),
	}, time.Now().UTC())

	assert.Len(t, out.VerifiedFields, 2)
	assert.Nil(t, out.SourceConflicts)
	assert.Equal(t, "a", out.PrimaryDataSource)
	assert.Equal(t, model.StatusVerified, out.Status)
}
