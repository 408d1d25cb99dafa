package expr

import (
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/siltdb/silt/pkg/model"
)

var (
	mapReflectType  = reflect.TypeOf(map[string]any{})
	listReflectType = reflect.TypeOf([]any{})
)

// activationFor exposes the document's fields as top-level identifiers plus
// the whole document under "doc". A field literally named "doc" shadows the
// latter.
func activationFor(d model.Document) map[string]any {
	all := make(map[string]any, len(d))
	for _, f := range d {
		all[f.Key] = exprValue(f.Value)
	}
	vars := make(map[string]any, len(all)+1)
	vars["doc"] = all
	for k, v := range all {
		vars[k] = v
	}
	return vars
}

// exprValue converts a stored value into something the expression runtime
// understands. Identity values surface as canonical hex strings so they can
// be compared against literals.
func exprValue(v any) any {
	switch val := v.(type) {
	case model.DocID:
		return val.String()
	case primitive.Binary:
		if id, err := model.DocIDFromBytes(val.Data); err == nil && val.Subtype == 0x00 {
			return id.String()
		}
		return val.Data
	case primitive.DateTime:
		return val.Time()
	case model.Document:
		out := make(map[string]any, len(val))
		for _, f := range val {
			out[f.Key] = exprValue(f.Value)
		}
		return out
	case bson.D:
		return exprValue(model.Document(val))
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = exprValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = exprValue(item)
		}
		return out
	default:
		return v
	}
}

// evalValue runs a program and converts the result into a storable value.
func evalValue(prg cel.Program, act map[string]any, src string) (any, error) {
	out, _, err := prg.Eval(act)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", src, err)
	}
	return nativeValue(out)
}

// nativeValue lowers an expression result to plain Go values. Map results
// become documents with name-ordered fields so storage stays deterministic.
func nativeValue(v ref.Val) (any, error) {
	if _, isNull := v.(types.Null); isNull {
		return nil, nil
	}
	switch v.(type) {
	case traits.Mapper:
		raw, err := v.ConvertToNative(mapReflectType)
		if err != nil {
			return nil, fmt.Errorf("convert map result: %w", err)
		}
		return model.FromMap(raw.(map[string]any)), nil
	case traits.Lister:
		raw, err := v.ConvertToNative(listReflectType)
		if err != nil {
			return nil, fmt.Errorf("convert list result: %w", err)
		}
		items := raw.([]any)
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = normalized(item)
		}
		return out, nil
	default:
		return v.Value(), nil
	}
}

func normalized(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return model.FromMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalized(item)
		}
		return out
	default:
		return v
	}
}
