package tools

import "fmt"

// Хелперы распаковки аргументов из decoded JSON (map[string]any).
// Модели иногда присылают числа как float64 — это учтено.

// StringArg достает обязательную строку.
func StringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return s, nil
}

// OptStringArg достает необязательную строку ("" если нет).
func OptStringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// IntArg достает необязательное число (def если нет).
func IntArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// MapArg достает обязательный объект.
func MapArg(args map[string]any, key string) (map[string]any, error) {
	v, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("missing required argument %q", key)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("argument %q must be an object", key)
	}
	return m, nil
}

// SliceArg достает обязательный массив.
func SliceArg(args map[string]any, key string) ([]any, error) {
	v, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("argument %q must be an array", key)
	}
	return s, nil
}

// StringSliceArg достает обязательный массив строк.
func StringSliceArg(args map[string]any, key string) ([]string, error) {
	raw, err := SliceArg(args, key)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("argument %q[%d] must be a string", key, i)
		}
		out = append(out, s)
	}
	return out, nil
}
