package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	fns := append(SalesFunctions(), SalesFunctions()[0])
	_, err := NewRegistry(fns...)
	require.ErrorIs(t, err, ErrDuplicateFunction)
}

func TestNewRegistryRejectsEmptyName(t *testing.T) {
	_, err := NewRegistry(Function{Call: func(context.Context, Args) (any, error) { return nil, nil }})
	require.Error(t, err)
}

func TestRegistryOrderAndLookup(t *testing.T) {
	r := NewSalesRegistry()
	assert.Equal(t, []string{"recommend_car", "calculate_insurance"}, r.Names())

	fn, ok := r.Lookup("calculate_insurance")
	require.True(t, ok)
	assert.NotEmpty(t, fn.Description)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestSchemaForInsurance(t *testing.T) {
	s := SchemaFor[InsuranceArgs]()
	assert.Equal(t, "object", s["type"])
	assert.NotContains(t, s, "$schema")

	props, ok := s["properties"].(map[string]any)
	require.True(t, ok)
	want := map[string]string{"plate_number": "string", "purchase_year": "number", "price": "number"}
	got := map[string]string{}
	for name, p := range props {
		got[name], _ = p.(map[string]any)["type"].(string)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("property types (-want +got):\n%s", diff)
	}
	assert.ElementsMatch(t, []any{"plate_number", "purchase_year", "price"}, s["required"])
}

func TestSchemaForRecommendHasNoRequired(t *testing.T) {
	s := SchemaFor[RecommendCarArgs]()
	assert.Empty(t, stringList(s["required"]))
	props := s["properties"].(map[string]any)
	assert.Len(t, props, 4)
}

func TestInvokeCalculateInsurance(t *testing.T) {
	r := NewSalesRegistry()
	out, err := r.Invoke(context.Background(), "calculate_insurance",
		`{"plate_number":"ABC123","purchase_year":2019,"price":20000}`)
	require.NoError(t, err)

	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"plate_number":"ABC123","purchase_year":2019,"premium":2000,"coverage":18000}`, string(b))
}

func TestInvokeRecommendCarEchoes(t *testing.T) {
	r := NewSalesRegistry()
	out, err := r.Invoke(context.Background(), "recommend_car",
		`{"brand":"honda","price":15000,"color":"red","year":2020}`)
	require.NoError(t, err)
	assert.Equal(t, CarRecommendation{Brand: "honda", Price: 15000, Color: "red", Year: 2020}, out)
}

func TestInvokeEmptyArguments(t *testing.T) {
	out, err := NewSalesRegistry().Invoke(context.Background(), "recommend_car", "")
	require.NoError(t, err)
	assert.Equal(t, CarRecommendation{}, out)
}

func TestInvokeErrorsAreDistinct(t *testing.T) {
	r := NewSalesRegistry()

	_, err := r.Invoke(context.Background(), "nope", `{}`)
	assert.ErrorIs(t, err, ErrUnknownFunction)
	assert.False(t, errors.Is(err, ErrInvalidArguments))

	_, err = r.Invoke(context.Background(), "recommend_car", `{"brand":42}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)
	assert.False(t, errors.Is(err, ErrUnknownFunction))
}

func TestValidateArgs(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"n":    map[string]any{"type": "integer"},
			"tags": map[string]any{"type": "array"},
			"opt":  map[string]any{"type": []any{"string", "null"}},
			"any":  map[string]any{},
		},
		"required":             []any{"n"},
		"additionalProperties": false,
	}
	tests := []struct {
		name string
		args string
		ok   bool
	}{
		{"integer", `{"n":3}`, true},
		{"fractional integer", `{"n":3.5}`, false},
		{"array", `{"n":1,"tags":["a"]}`, true},
		{"array mismatch", `{"n":1,"tags":"a"}`, false},
		{"nullable", `{"n":1,"opt":null}`, true},
		{"untyped", `{"n":1,"any":{"x":1}}`, true},
		{"extra property", `{"n":1,"extra":true}`, false},
		{"missing required", `{}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := DecodeArgs(tt.args)
			require.NoError(t, err)
			err = ValidateArgs(schema, args)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidArguments)
			}
		})
	}
}

func TestFunctionHandlerErrorPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	r, err := NewRegistry(Function{
		Name: "fail",
		Call: func(context.Context, Args) (any, error) { return nil, boom },
	})
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), "fail", `{}`)
	assert.ErrorIs(t, err, boom)

	schemas := r.Schemas()
	require.Len(t, schemas, 1)
	assert.Equal(t, "object", schemas[0].Parameters["type"])
}
