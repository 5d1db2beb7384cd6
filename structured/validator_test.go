package structured

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/lessonpipe/types"
)

// strictSchema 覆盖全部约束类型
func strictSchema() *Schema {
	item := NewObjectSchema().
		AddProperty("id", NewIntegerSchema().WithMinimum(1)).
		AddProperty("label", NewStringSchema()).
		AddRequired("id")

	return NewObjectSchema().
		WithTitle("Strict").
		AddProperty("name", NewStringSchema().WithMinLength(2).WithMaxLength(5)).
		AddProperty("kind", NewEnumSchema("alpha", "beta")).
		AddProperty("score", NewNumberSchema().WithMinimum(0).WithMaximum(1)).
		AddProperty("active", NewBooleanSchema()).
		AddProperty("items", NewArraySchema(item).WithMinItems(1).WithMaxItems(2)).
		AddProperty("note", NewStringSchema()).
		AddRequired("name", "kind", "items")
}

func issueCodes(issues []types.Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Path + ":" + is.Code
	}
	return out
}

func TestValidator_Valid(t *testing.T) {
	doc := mustParse(t, `{"name":"abc","kind":"beta","score":0.5,"active":true,"items":[{"id":2.0,"label":"x"}],"note":null}`)
	res := NewValidator().Validate(doc, strictSchema())
	require.True(t, res.Valid(), "issues: %v", res.Issues)
	assert.NoError(t, res.Err())
	assert.Empty(t, res.Issues)

	// 整数字面量规范化，原文档不变
	assert.Equal(t, `{"name":"abc","kind":"beta","score":0.5,"active":true,"items":[{"id":2,"label":"x"}],"note":null}`,
		string(res.Record.JSON()))
	items, _ := doc.Get("items")
	id, _ := items.Items()[0].Get("id")
	lit, _ := id.NumberLiteral()
	assert.Equal(t, "2.0", lit)

	type item struct {
		ID int `json:"id"`
	}
	type strict struct {
		Name  string `json:"name"`
		Items []item `json:"items"`
	}
	out, err := DecodeRecord[strict](res.Record)
	require.NoError(t, err)
	assert.Equal(t, "abc", out.Name)
	assert.Equal(t, []item{{ID: 2}}, out.Items)
	assert.Equal(t, "beta", res.Record.Map()["kind"])
	assert.Same(t, res.Record.Schema(), res.Record.Schema())
}

func TestValidator_CollectsEveryIssue(t *testing.T) {
	doc := mustParse(t, `{"zeta":1,"name":"a","kind":"Alpha","score":2,"active":"yes","items":[{"label":3},{"id":0},{"id":1.5}],"alpha":true}`)
	res := NewValidator().Validate(doc, strictSchema())
	require.False(t, res.Valid())
	assert.Nil(t, res.Record)

	assert.Equal(t, []string{
		"name:min_length",
		"kind:enum",
		"score:maximum",
		"active:type",
		"items:max_items",
		"items[0].id:required",
		"items[0].label:type",
		"items[1].id:minimum",
		"items[2].id:type",
		"alpha:unknown_field",
		"zeta:unknown_field",
	}, issueCodes(res.Issues))

	var ve *ValidationError
	require.ErrorAs(t, res.Err(), &ve)
	assert.Len(t, ve.Issues, 11)
	assert.Contains(t, ve.Error(), "validation failed with 11 errors")
}

func TestValidator_RequiredAndNull(t *testing.T) {
	res := NewValidator().Validate(mustParse(t, `{"name":null,"items":[{"id":1}]}`), strictSchema())
	require.False(t, res.Valid())
	assert.Equal(t, []string{"name:null", "kind:required"}, issueCodes(res.Issues))
	assert.Equal(t, "string", res.Issues[0].Expected)
	assert.Equal(t, "missing", res.Issues[1].Actual)
}

func TestValidator_RootType(t *testing.T) {
	res := NewValidator().Validate(mustParse(t, `["not","an","object"]`), strictSchema())
	require.Len(t, res.Issues, 1)
	assert.Equal(t, types.Issue{Path: "", Code: IssueType, Expected: "object", Actual: "array"}, res.Issues[0])
	assert.Equal(t, "$: expected object, got array", res.Err().Error())
}

func TestValidator_MaxLengthCountsRunes(t *testing.T) {
	res := NewValidator().Validate(mustParse(t, `{"name":"éééé","kind":"alpha","items":[{"id":1}]}`), strictSchema())
	assert.True(t, res.Valid(), "issues: %v", res.Issues)
}

func TestValidator_AdditionalPropertiesAllowed(t *testing.T) {
	s := NewObjectSchema().AddProperty("a", NewStringSchema()).WithAdditionalProperties(true)
	res := NewValidator().Validate(mustParse(t, `{"a":"x","b":1}`), s)
	assert.True(t, res.Valid())
}

func TestValidator_IntegerOutsideSafeRange(t *testing.T) {
	schema := NewObjectSchema().
		AddProperty("n", NewIntegerSchema()).
		AddRequired("n")

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"huge exponent", `{"n":1e20}`, []string{"n:maximum"}},
		{"huge negative", `{"n":-1e20}`, []string{"n:minimum"}},
		{"just above", `{"n":9007199254740992}`, []string{"n:maximum"}},
		{"largest safe", `{"n":9007199254740991}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewValidator().Validate(mustParse(t, tt.in), schema)
			if tt.want != nil {
				require.False(t, res.Valid())
				assert.Equal(t, tt.want, issueCodes(res.Issues))
				return
			}
			require.True(t, res.Valid(), "issues: %v", res.Issues)
			out, err := DecodeRecord[struct {
				N int64 `json:"n"`
			}](res.Record)
			require.NoError(t, err)
			assert.Equal(t, int64(9007199254740991), out.N)
		})
	}
}

func TestValidator_DoesNotMutate(t *testing.T) {
	raw := `{"name":"A","kind":"ALPHA","items":[],"x":null}`
	doc := mustParse(t, raw)
	NewValidator().Validate(doc, strictSchema())
	assert.Equal(t, raw, doc.String())
}

// =============================================================================
// Properties
// =============================================================================

// TestProperty_ValidateDeterministic validate 是 (document, schema) 的纯函数
func TestProperty_ValidateDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	schema := strictSchema()
	properties.Property("same input yields same result", prop.ForAll(
		func(name, kind string, score float64, n int) bool {
			doc := NewObject().
				Set("name", NewString(name)).
				Set("kind", NewString(kind)).
				Set("score", NewFloat(score))
			items := make([]*Node, n)
			for i := range items {
				items[i] = NewObject().Set("id", NewInt(int64(i)))
			}
			doc.Set("items", NewArray(items...))
			before := doc.String()

			a := NewValidator().Validate(doc, schema)
			b := NewValidator().Validate(doc, schema)
			if a.Valid() != b.Valid() || doc.String() != before {
				return false
			}
			if a.Valid() {
				return string(a.Record.JSON()) == string(b.Record.JSON())
			}
			return assert.ObjectsAreEqual(a.Issues, b.Issues)
		},
		gen.AlphaString(),
		gen.OneConstOf("alpha", "beta", "Alpha", "gamma", ""),
		gen.Float64Range(-1, 2),
		gen.IntRange(0, 3),
	))
	properties.TestingRun(t)
}

// TestProperty_ValidationCompleteness 每个结构非法字段至少产生一条问题
func TestProperty_ValidationCompleteness(t *testing.T) {
	schema := strictSchema()
	fields := []string{"name", "kind", "score", "active", "items"}
	invalid := map[string]*Node{
		"name":   NewInt(7),
		"kind":   NewString("omega"),
		"score":  NewString("high"),
		"active": NewArray(),
		"items":  NewString("none"),
	}
	rapid.Check(t, func(rt *rapid.T) {
		doc, err := Parse([]byte(`{"name":"abc","kind":"alpha","score":0.5,"active":false,"items":[{"id":1}]}`))
		require.NoError(rt, err)
		broken := rapid.SliceOfNDistinct(rapid.SampledFrom(fields), 1, len(fields), rapid.ID[string]).Draw(rt, "broken")
		for _, f := range broken {
			doc.Set(f, invalid[f].Clone())
		}

		res := NewValidator().Validate(doc, schema)
		require.False(rt, res.Valid())
		reported := make(map[string]bool)
		for _, is := range res.Issues {
			reported[is.Path] = true
		}
		for _, f := range broken {
			assert.True(rt, reported[f], "field %s has no issue", f)
		}
	})
}
