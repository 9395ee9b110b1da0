package buildsys

import (
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

// normalizePath resolves paths relative to the script's directory. Paths starting with //
// are relative to the project root.
func normalizePath(ctx *parserCtx, pathList ...string) string {
	result := filepath.Dir(ctx.filepath)

	for _, path := range pathList {
		if strings.HasPrefix(path, "//") {
			result = filepath.Join(ctx.projectRoot, path[2:])
		} else if strings.HasPrefix(path, "/") {
			result = filepath.Join(filepath.VolumeName(result), path)
		} else if !filepath.IsAbs(path) {
			result = filepath.Join(result, path)
		} else {
			result = path
		}
	}

	return filepath.Clean(result)
}

func simplifyPath(ctx *parserCtx, path string) string {
	projectRoot := ctx.projectRoot
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	if strings.HasPrefix(absPath, projectRoot+string(filepath.Separator)) {
		return "//" + filepath.ToSlash(absPath[len(projectRoot)+1:])
	}
	return path
}

func interfaceToStarlark(value interface{}) (starlark.Value, error) {
	// handle a few simple and common cases first
	switch value := value.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(value), nil
	case int:
		return starlark.MakeInt(value), nil
	case int64:
		return starlark.MakeInt64(value), nil
	case bool:
		return starlark.Bool(value), nil
	case float32:
		return starlark.Float(value), nil
	case float64:
		if value == float64(int64(value)) {
			return starlark.MakeInt64(int64(value)), nil
		}
		return starlark.Float(value), nil
	case []string:
		items := make(starlark.Tuple, len(value))
		for idx, raw := range value {
			items[idx] = starlark.String(raw)
		}

		return items, nil
	case map[string]string:
		dict := starlark.NewDict(len(value))
		for k, v := range value {
			err := dict.SetKey(starlark.String(k), starlark.String(v))
			if err != nil {
				return nil, err
			}
		}

		return dict, nil
	}

	refValue := reflect.ValueOf(value)
	switch refValue.Kind() {
	case reflect.Slice, reflect.Array:
		list := make([]starlark.Value, refValue.Len())
		for idx := 0; idx < refValue.Len(); idx++ {
			item, err := interfaceToStarlark(refValue.Index(idx).Interface())
			if err != nil {
				return nil, err
			}
			list[idx] = item
		}

		return starlark.NewList(list), nil
	case reflect.Map:
		dict := starlark.NewDict(refValue.Len())
		iter := refValue.MapRange()
		for iter.Next() {
			key, err := interfaceToStarlark(iter.Key().Interface())
			if err != nil {
				return nil, err
			}

			value, err := interfaceToStarlark(iter.Value().Interface())
			if err != nil {
				return nil, err
			}

			err = dict.SetKey(key, value)
			if err != nil {
				return nil, err
			}
		}

		return dict, nil
	}

	return nil, eris.Errorf("encountered unsupported type %v", refValue.Kind())
}

// starlarkToInterface converts a Starlark value into plain Go values (string, bool, int64,
// float64, []interface{}, map[string]interface{}). Callables are reported with ok == false.
func starlarkToInterface(value starlark.Value) (result interface{}, ok bool, err error) {
	switch value := value.(type) {
	case starlark.NoneType:
		return nil, true, nil
	case starlark.String:
		return value.GoString(), true, nil
	case starlark.Bool:
		return bool(value), true, nil
	case starlark.Int:
		i, exact := value.Int64()
		if !exact {
			return nil, false, eris.Errorf("integer %s is out of range", value.String())
		}
		return i, true, nil
	case starlark.Float:
		return float64(value), true, nil
	case *starlark.List:
		return iterableToSlice(value)
	case starlark.Tuple:
		return iterableToSlice(value)
	case *starlark.Dict:
		out := make(map[string]interface{}, value.Len())
		for _, item := range value.Items() {
			key, isString := starlark.AsString(item[0])
			if !isString {
				return nil, false, eris.Errorf("found key type %s in dict but only strings are supported", item[0].Type())
			}

			converted, convertible, err := starlarkToInterface(item[1])
			if err != nil {
				return nil, false, eris.Wrapf(err, "in key %s", key)
			}
			if convertible {
				out[key] = converted
			}
		}
		return out, true, nil
	case starlark.Callable:
		return nil, false, nil
	}

	return nil, false, eris.Errorf("unsupported value of type %s", value.Type())
}

func iterableToSlice(input starlark.Iterable) (interface{}, bool, error) {
	out := make([]interface{}, 0)
	iter := input.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		converted, convertible, err := starlarkToInterface(item)
		if err != nil {
			return nil, false, err
		}
		if convertible {
			out = append(out, converted)
		}
	}
	return out, true, nil
}

// lookupKey walks a decoded YAML or JSON document along a dotted key. ok is false if any
// part of the key is missing.
func lookupKey(doc interface{}, key string) (interface{}, bool, error) {
	value := reflect.ValueOf(doc)
	for _, part := range strings.Split(key, ".") {
		for value.Kind() == reflect.Interface {
			value = value.Elem()
		}

		switch value.Kind() {
		case reflect.Map:
			value = value.MapIndex(reflect.ValueOf(part))
		case reflect.Slice:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= value.Len() {
				return nil, false, nil
			}
			value = value.Index(idx)
		case reflect.Invalid:
			return nil, false, nil
		default:
			return nil, false, eris.Errorf("encountered unexpected value of kind %v in document", value.Kind())
		}
	}

	if !value.IsValid() {
		return nil, false, nil
	}
	if value.Kind() == reflect.Interface && value.IsNil() {
		return nil, false, nil
	}
	return value.Interface(), true, nil
}
