package script

import (
	"fmt"
	"sort"
	"time"

	"go.starlark.net/starlark"
)

// toValue converts plain Go data into Starlark values.
func toValue(v any) starlark.Value {
	switch v := v.(type) {

	case nil:
		return starlark.None

	case starlark.Value:
		return v

	case bool:
		return starlark.Bool(v)

	case string:
		return starlark.String(v)
	case []byte:
		return starlark.Bytes(v)

	case int:
		return starlark.MakeInt(v)
	case int64:
		return starlark.MakeInt64(v)
	case uint64:
		return starlark.MakeUint64(v)

	case float64:
		return starlark.Float(v)

	case time.Time:
		return starlark.String(v.Format(time.RFC3339))

	case []string:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			elems[i] = starlark.String(e)
		}
		return starlark.NewList(elems)

	case []any:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			elems[i] = toValue(e)
		}
		return starlark.NewList(elems)

	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := starlark.NewDict(len(v))
		for _, k := range keys {
			d.SetKey(starlark.String(k), toValue(v[k]))
		}
		return d

	}
	panic(fmt.Errorf("unsupported type for starlark: %T", v))
}
